package rest

import (
	"io"
	"log/slog"
	"net/http"
	"time"
)

// retryableStatuses is the fixed allow-list of HTTP statuses worth another
// attempt; everything else is treated as a definitive answer.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// defaultBackoff waits 2^attempt seconds: ~2s before the first retry, ~4s
// before the second.
func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// retryTransport retries transport-level failures and allow-listed statuses
// with exponential backoff, bounded by maxRetries. Status classification
// happens here rather than in callers: an allow-listed status is treated the
// same as a transport rejection, and call sites only ever see the final
// response once the budget runs out. The retry counter lives on the round
// trip itself, one counter per request.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    func(attempt int) time.Duration
	logger     *slog.Logger
	onRetry    func()
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	backoff := t.backoff
	if backoff == nil {
		backoff = defaultBackoff
	}

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = base.RoundTrip(req)
		if err == nil && !retryableStatuses[resp.StatusCode] {
			return resp, nil
		}
		if attempt >= t.maxRetries {
			return resp, err
		}
		if resp != nil {
			// Drain so the connection can be reused across attempts.
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if req.Body != nil && req.GetBody == nil {
			// Body already consumed and not replayable.
			return resp, err
		}

		wait := backoff(attempt + 1)
		if t.logger != nil {
			t.logger.Debug("retrying request",
				slog.String("url", req.URL.String()),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait))
		}
		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}
		if t.onRetry != nil {
			t.onRetry()
		}
	}
}
