package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openshelf/openshelf-go/internal/appstate"
	"github.com/openshelf/openshelf-go/internal/store"
)

// DefaultRevalidateInterval is how often the revalidator re-checks the backend
// when the configuration does not say otherwise.
const DefaultRevalidateInterval = 5 * time.Minute

// RemoteUser carries the backend fields the revalidator compares against the
// local auth slice.
type RemoteUser struct {
	ID            int64
	IsDeleted     bool
	IsSubscribed  bool
	ExpiryDate    string
	ForceLogout   bool
	LoginDeviceID string
}

// FetchUser retrieves the current account record from the backend.
type FetchUser func(ctx context.Context, userID int64) (RemoteUser, error)

// Revalidator periodically re-checks the logged-in account against the
// backend. It tears the session down when the backend flags a forced logout or
// when the account logged in on another device, and otherwise refreshes the
// subscription fields so gating decisions track the server.
type Revalidator struct {
	auth     *store.Slice[appstate.AuthState]
	fetch    FetchUser
	interval time.Duration
	logger   *slog.Logger
	onLogout func()

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRevalidator wires a revalidator over the auth slice. onLogout runs after
// the slice has been reset, typically to route the UI back to the login view;
// it may be nil.
func NewRevalidator(auth *store.Slice[appstate.AuthState], fetch FetchUser, interval time.Duration, logger *slog.Logger, onLogout func()) *Revalidator {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Revalidator{
		auth:     auth,
		fetch:    fetch,
		interval: interval,
		logger:   logger.With(slog.String("component", "session-revalidator")),
		onLogout: onLogout,
	}
}

// Start launches the polling loop. It returns immediately; call Stop to shut
// the loop down.
func (r *Revalidator) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for the in-flight check, if any.
func (r *Revalidator) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.done != nil {
			<-r.done
		}
	})
}

// RunOnce performs a single revalidation pass. Anonymous sessions are a no-op.
// Fetch failures are logged and skipped; a transient backend outage must not
// log anyone out.
func (r *Revalidator) RunOnce(ctx context.Context) {
	auth := r.auth.Get()
	if !auth.IsLoggedIn || auth.User.ID == 0 {
		return
	}

	remote, err := r.fetch(ctx, auth.User.ID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("revalidation fetch failed", slog.Any("error", err))
		return
	}

	if remote.ForceLogout {
		r.logger.Info("forced logout from backend", slog.Int64("user", auth.User.ID))
		r.teardown()
		return
	}
	if remote.LoginDeviceID != "" && auth.LoginDeviceID != "" && remote.LoginDeviceID != auth.LoginDeviceID {
		r.logger.Info("session superseded by another device", slog.Int64("user", auth.User.ID))
		r.teardown()
		return
	}

	now := time.Now()
	r.auth.Update(func(state *appstate.AuthState) {
		state.IsDeleted = remote.IsDeleted
		state.IsSubscribed = remote.IsSubscribed
		state.ExpiryDate = remote.ExpiryDate
		RecomputeExpiry(state, now)
	})
}

func (r *Revalidator) teardown() {
	r.auth.Reset()
	if r.onLogout != nil {
		r.onLogout()
	}
}
