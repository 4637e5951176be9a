// Package debug exposes the operational HTTP surface: health, cache
// statistics, and Prometheus metrics. It serves operators, not application
// traffic.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/openshelf/openshelf-go/internal/config"
	"github.com/openshelf/openshelf-go/internal/metrics"
	"github.com/openshelf/openshelf-go/internal/restcache"
)

// Server owns the debug HTTP lifecycle and orchestrates graceful shutdown.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	once       sync.Once
}

// Health is the /healthz payload.
type Health struct {
	Status        string             `json:"status"`
	TokenSources  []string           `json:"tokenSources,omitempty"`
	SkippedTokens []config.TokenSkip `json:"skippedTokens,omitempty"`
	Gates         []string           `json:"gates,omitempty"`
}

// CacheStats is the /cache/stats payload.
type CacheStats struct {
	Backend string `json:"backend"`
	Size    int64  `json:"size"`
	Error   string `json:"error,omitempty"`
}

// Options carries the collaborators the debug handlers report on.
type Options struct {
	Cache        restcache.Store
	CacheBackend string
	Metrics      *metrics.Recorder
	Health       func() Health
}

// New builds the debug server on the configured listen address.
func New(cfg config.DebugConfig, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "debug"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := Health{Status: "ok"}
		if opts.Health != nil {
			health = opts.Health()
		}
		writeJSON(w, http.StatusOK, health)
	})
	mux.HandleFunc("/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := CacheStats{Backend: opts.CacheBackend}
		if opts.Cache != nil {
			size, err := opts.Cache.Size(r.Context())
			if err != nil {
				stats.Error = err.Error()
			}
			stats.Size = size
		}
		writeJSON(w, http.StatusOK, stats)
	})
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}

	addr := net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
	return &Server{
		logger: logger,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Handler returns the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run keeps the listener active until the context is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("debug listener starting", slog.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("debug: listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// shutdown collapses the listener once so cascading cancellations do not race.
func (s *Server) shutdown(ctx context.Context) error {
	var shutdownErr error
	s.once.Do(func() {
		s.logger.Info("debug listener shutting down")
		shutdownErr = s.httpServer.Shutdown(ctx)
	})
	return shutdownErr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
