package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes attached to normalized API errors.
const (
	CodeNetwork    = "network"
	CodeAPI        = "api"
	CodeValidation = "validation"
)

// APIError is the normalized error shape that reaches callers in place of raw
// transport failures.
type APIError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("rest: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("rest: %s", e.Message)
}

// Programmer-error guards raised synchronously by the query builder before any
// network call.
var (
	ErrMissingID   = errors.New("rest: operation requires an id; call WithID first")
	ErrMissingBody = errors.New("rest: operation requires a body; call WithBody first")
)

// envelope is the {err, result} response wrapper the backend returns. A falsy
// err signals success.
type envelope struct {
	Err    json.RawMessage `json:"err"`
	Result json.RawMessage `json:"result"`
}

// falsy reports whether a raw JSON value counts as "no error": absent, null,
// false, zero, or the empty string.
func falsy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

// normalizeError wraps transport failures into an APIError. Cancellation is
// rethrown untouched so callers can distinguish user-initiated aborts from
// real failures.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Message: err.Error(), Code: CodeNetwork}
}

// errorMessage extracts a human-readable message from a raw envelope err value.
func errorMessage(raw json.RawMessage, status int) string {
	var asString string
	if json.Unmarshal(raw, &asString) == nil && asString != "" {
		return asString
	}
	var asObject struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &asObject) == nil && asObject.Message != "" {
		return asObject.Message
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}
