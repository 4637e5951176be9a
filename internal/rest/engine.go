package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openshelf/openshelf-go/internal/metrics"
	"github.com/openshelf/openshelf-go/internal/restcache"
	"github.com/openshelf/openshelf-go/internal/signature"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	maxResponseBody = 4 << 20
)

// Config carries the transport endpoints and defaults for the request engine.
type Config struct {
	// BaseURL is the "local" backend that resolves raw signatures server-side.
	BaseURL string
	// ProductionURL serves requests carrying a precomputed bypass token. When
	// empty, everything routes to BaseURL.
	ProductionURL string
	Timeout       time.Duration
	// MaxRetries bounds transport retries per request. Zero inherits the
	// default of 3; a negative value disables retries entirely.
	MaxRetries int
}

// Client executes backend requests. GET responses route through the response
// cache; mutating verbs always hit the network.
type Client struct {
	cfg     Config
	base    http.RoundTripper
	logger  *slog.Logger
	cacher  *restcache.Cacher
	tokens  TokenSource
	metrics *metrics.Recorder
}

// ClientOption customizes a Client at construction time.
type ClientOption func(*Client)

// WithTransport swaps the underlying round tripper, mainly for tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.base = rt }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(recorder *metrics.Recorder) ClientOption {
	return func(c *Client) { c.metrics = recorder }
}

// NewClient wires the engine. A nil cacher disables caching; a nil token
// source routes everything to the local base URL.
func NewClient(cfg Config, cacher *restcache.Cacher, tokens TokenSource, logger *slog.Logger, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = defaultRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		cfg:    cfg,
		base:   http.DefaultTransport,
		logger: logger.With(slog.String("component", "rest")),
		cacher: cacher,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Resource opens a fluent query builder for a named resource.
func (c *Client) Resource(name string) *Query {
	return newQuery(c, name)
}

// Manager opens the non-fluent facade for a named resource.
func (c *Client) Manager(name string) *ResourceManager {
	return &ResourceManager{client: c, resource: name}
}

// InvalidateCache removes cached responses matching the regex pattern; an
// empty pattern clears the whole cache.
func (c *Client) InvalidateCache(ctx context.Context, pattern string) error {
	return c.cacher.Invalidate(ctx, pattern)
}

// Execute issues one request described by method, endpoint, and options. GET
// requests consult the response cache first; everything else goes straight to
// the transport.
func (c *Client) Execute(ctx context.Context, method, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	sig, err := signature.BuildKey(c.cfg.BaseURL, method, endpoint, opts.signatureOptions())
	if err != nil {
		return nil, err
	}

	exec := func(ctx context.Context) (json.RawMessage, error) {
		return c.doRequest(ctx, method, endpoint, sig, opts)
	}

	if method != http.MethodGet {
		return exec(ctx)
	}
	desc := restcache.RequestDescriptor{
		Method:    method,
		Signature: sig,
		Endpoint:  endpoint,
		Params:    opts.Shaping.queryValues(),
	}
	return c.cacher.Do(ctx, desc, opts.cacheOptions(), exec)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint, sig string, opts RequestOptions) (json.RawMessage, error) {
	start := time.Now()
	resource := resourceFromEndpoint(endpoint)

	result, err := c.roundTrip(ctx, method, endpoint, sig, opts, resource)
	if c.metrics != nil {
		outcome := metrics.RequestOK
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			outcome = metrics.RequestCanceled
		default:
			outcome = metrics.RequestError
		}
		c.metrics.ObserveRequest(resource, method, outcome, time.Since(start))
	}
	return result, err
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint, sig string, opts RequestOptions, resource string) (json.RawMessage, error) {
	token, hasToken := "", false
	if c.tokens != nil {
		token, hasToken = c.tokens.Token(sig)
	}
	base := c.cfg.BaseURL
	if hasToken && c.cfg.ProductionURL != "" {
		base = c.cfg.ProductionURL
	} else {
		hasToken = false
	}

	target, err := buildURL(base, endpoint, opts.Shaping.queryValues())
	if err != nil {
		return nil, normalizeError(err)
	}

	var body io.Reader
	var bodyBytes []byte
	if opts.Transport.Body != nil {
		bodyBytes, err = json.Marshal(opts.Transport.Body)
		if err != nil {
			return nil, fmt.Errorf("rest: encode body: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("rest: build request: %w", err)
	}
	if bodyBytes != nil {
		snap := bodyBytes
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(snap)), nil
		}
		req.Header.Set("Content-Type", "application/json")
	}

	for name, value := range opts.Shaping.headerValues() {
		req.Header.Set(name, value)
	}
	if hasToken {
		req.Header.Set("Authorization", token)
	} else {
		req.Header.Set("Signature", sig)
	}

	retries := c.cfg.MaxRetries
	if opts.Transport.Retries != nil {
		retries = *opts.Transport.Retries
		if retries < 0 {
			retries = 0
		}
	}
	timeout := opts.Transport.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &retryTransport{
			base:       c.base,
			maxRetries: retries,
			logger:     c.logger,
			onRetry: func() {
				c.metrics.ObserveRetry(resource)
			},
		},
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, normalizeError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, normalizeError(fmt.Errorf("rest: read response: %w", err))
	}

	return decodeEnvelope(resp.StatusCode, payload)
}

// decodeEnvelope unwraps the backend's {err, result} envelope. A falsy err
// yields the result; anything else becomes a normalized APIError.
func decodeEnvelope(status int, payload []byte) (json.RawMessage, error) {
	var env envelope
	decodeErr := json.Unmarshal(payload, &env)

	if status < 200 || status >= 300 {
		message := http.StatusText(status)
		if decodeErr == nil && !falsy(env.Err) {
			message = errorMessage(env.Err, status)
		}
		return nil, &APIError{Message: message, Status: status, Code: CodeAPI}
	}
	if decodeErr != nil {
		// Not every collaborator wraps responses; pass raw payloads through.
		return json.RawMessage(payload), nil
	}
	if !falsy(env.Err) {
		return nil, &APIError{Message: errorMessage(env.Err, status), Status: status, Code: CodeAPI}
	}
	if len(bytes.TrimSpace(env.Result)) > 0 {
		return env.Result, nil
	}
	return json.RawMessage(payload), nil
}

func buildURL(base, endpoint string, params url.Values) (string, error) {
	joined := strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(endpoint, "/")
	parsed, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("rest: request url: %w", err)
	}
	if len(params) > 0 {
		values := parsed.Query()
		for name, list := range params {
			for _, value := range list {
				values.Set(name, value)
			}
		}
		parsed.RawQuery = values.Encode()
	}
	return parsed.String(), nil
}

// resourceFromEndpoint extracts the leading resource segment for metric labels.
func resourceFromEndpoint(endpoint string) string {
	trimmed := strings.Trim(endpoint, "/")
	if idx := strings.Index(trimmed, "/"); idx > 0 {
		trimmed = trimmed[:idx]
	}
	if trimmed == "" {
		return "root"
	}
	return trimmed
}
