// Package library is the thin service layer over the request engine: one
// canonical path for each backend operation, with response normalization the
// raw engine does not do.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openshelf/openshelf-go/internal/appstate"
	"github.com/openshelf/openshelf-go/internal/rest"
	"github.com/openshelf/openshelf-go/internal/session"
)

// User is the backend account record as the client sees it.
type User struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Image         string   `json:"image"`
	IsAdmin       bool     `json:"isAdmin"`
	IsDeleted     bool     `json:"isDeleted"`
	IsSubscribed  bool     `json:"isSubscribed"`
	ExpiryDate    string   `json:"expiryDate"`
	ForceLogout   FlexBool `json:"forceLogout"`
	LastLogin     string   `json:"lastLogin"`
	LoginDeviceID string   `json:"loginDeviceId"`
	Session       string   `json:"session"`
}

// FlexBool tolerates the backend's habit of sending booleans as 0/1, "0"/"1",
// or true/false depending on the storage column.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1", `"1"`, `"true"`:
		*b = true
	case "false", "0", `"0"`, `"false"`, "null", `""`:
		*b = false
	default:
		return fmt.Errorf("library: cannot read %q as boolean", data)
	}
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

// Users performs account operations and keeps the auth slice in step with
// their outcomes.
type Users struct {
	client *rest.Client
	stores *appstate.Stores
	logger *slog.Logger
}

// NewUsers builds the user service over the request engine and the state
// slices it mutates.
func NewUsers(client *rest.Client, stores *appstate.Stores, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}
	return &Users{
		client: client,
		stores: stores,
		logger: logger.With(slog.String("component", "library-users")),
	}
}

// HashPassword digests a plaintext password before it leaves the client.
// Plaintext is never transmitted or stored.
func HashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// CheckUserExists reports whether an account with the given email exists,
// without leaking anything else about it.
func (u *Users) CheckUserExists(ctx context.Context, email string) (bool, error) {
	raw, err := u.client.Resource("users").
		Filter(fmt.Sprintf("email = %q", email)).
		Fields("id").
		Cache(false).
		GetAll(ctx)
	if err != nil {
		return false, err
	}
	var matches []json.RawMessage
	if err := json.Unmarshal(raw, &matches); err != nil {
		return false, fmt.Errorf("library: decode user lookup: %w", err)
	}
	return len(matches) > 0, nil
}

// Login authenticates with an email and plaintext password, and on success
// populates the auth slice from the returned account record.
func (u *Users) Login(ctx context.Context, email, password, deviceID string) (User, error) {
	raw, err := u.client.Resource("users").
		WithBody(map[string]string{
			"email":    email,
			"password": HashPassword(password),
			"deviceId": deviceID,
		}).
		WithValidation("login").
		Create(ctx)
	if err != nil {
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, fmt.Errorf("library: decode login response: %w", err)
	}

	now := time.Now()
	u.stores.Auth.Update(func(state *appstate.AuthState) {
		state.IsLoggedIn = true
		state.User = appstate.AuthUser{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Image: user.Image,
		}
		state.Session = user.Session
		state.IsAdmin = user.IsAdmin
		state.IsDeleted = user.IsDeleted
		state.IsSubscribed = user.IsSubscribed
		state.ExpiryDate = user.ExpiryDate
		state.ForceLogout = false
		state.LastLogin = user.LastLogin
		state.LoginDeviceID = deviceID
		session.RecomputeExpiry(state, now)
	})
	u.logger.Info("login succeeded", slog.Int64("user", user.ID))
	return user, nil
}

// Signup registers a new account. The caller logs in separately; signup does
// not mutate the auth slice.
func (u *Users) Signup(ctx context.Context, name, email, password string) (User, error) {
	raw, err := u.client.Resource("users").
		WithBody(map[string]string{
			"name":     name,
			"email":    email,
			"password": HashPassword(password),
		}).
		WithValidation("signup").
		Create(ctx)
	if err != nil {
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, fmt.Errorf("library: decode signup response: %w", err)
	}
	return user, nil
}

// Logout clears the auth slice and tells the backend to drop the session.
// The local reset happens regardless of the backend's answer.
func (u *Users) Logout(ctx context.Context) error {
	auth := u.stores.Auth.Get()
	u.stores.Auth.Reset()
	if !auth.IsLoggedIn || auth.User.ID == 0 {
		return nil
	}
	_, err := u.client.Resource("users").
		WithID(fmt.Sprintf("%d", auth.User.ID)).
		WithBody(map[string]any{"session": ""}).
		Patch(ctx)
	if err != nil {
		u.logger.Warn("backend logout failed", slog.Any("error", err))
	}
	return err
}

// CurrentUser fetches the fresh account record for the logged-in user.
func (u *Users) CurrentUser(ctx context.Context) (User, error) {
	auth := u.stores.Auth.Get()
	if !auth.IsLoggedIn || auth.User.ID == 0 {
		return User{}, &rest.APIError{Message: "not logged in", Code: rest.CodeValidation}
	}
	return u.fetch(ctx, auth.User.ID)
}

// FetchRemote adapts the service to the session revalidator's fetch contract.
func (u *Users) FetchRemote(ctx context.Context, userID int64) (session.RemoteUser, error) {
	user, err := u.fetch(ctx, userID)
	if err != nil {
		return session.RemoteUser{}, err
	}
	return session.RemoteUser{
		ID:            user.ID,
		IsDeleted:     user.IsDeleted,
		IsSubscribed:  user.IsSubscribed,
		ExpiryDate:    user.ExpiryDate,
		ForceLogout:   bool(user.ForceLogout),
		LoginDeviceID: user.LoginDeviceID,
	}, nil
}

func (u *Users) fetch(ctx context.Context, id int64) (User, error) {
	raw, err := u.client.Resource("users").
		WithID(fmt.Sprintf("%d", id)).
		Cache(false).
		Get(ctx)
	if err != nil {
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, fmt.Errorf("library: decode user: %w", err)
	}
	return user, nil
}

// List returns every account; admin only, enforced server-side.
func (u *Users) List(ctx context.Context) ([]User, error) {
	raw, err := u.client.Resource("users").
		IncludeHidden().
		Sort("name").
		Cache(false).
		GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("library: decode user list: %w", err)
	}
	return users, nil
}

// Deactivate marks an account deleted without destroying its records.
func (u *Users) Deactivate(ctx context.Context, id int64) error {
	_, err := u.client.Resource("users").
		WithID(fmt.Sprintf("%d", id)).
		WithBody(map[string]any{"isDeleted": true}).
		Patch(ctx)
	return err
}
