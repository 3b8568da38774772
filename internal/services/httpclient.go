package services

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

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	defaultProviderTimeout = 8 * time.Second
	defaultRetryBaseDelay  = 250 * time.Millisecond
	defaultRetryMaxDelay   = 2 * time.Second
	defaultRetryAttempts   = 2
	maxResponseBytes       = 1 << 20
)

// Observer receives the outcome of every provider call.
type Observer interface {
	ObserveProviderCall(provider, operation, outcome string, elapsed time.Duration)
}

// HTTPConfig describes one external provider endpoint.
type HTTPConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	// AuthHeader names the header carrying APIKey. Empty means
	// "Authorization: Bearer <key>".
	AuthHeader string
	Timeout    time.Duration
}

// Response is a fully read provider response.
type Response struct {
	StatusCode int
	Body       []byte
}

// HTTPClient performs JSON calls against a provider. Polls (GET) are retried
// with backoff on transient failures; submissions (POST) are attempted once
// since providers do not deduplicate them. Both pass through a shared circuit
// breaker so a failing provider is not hammered by every reconcile pass.
type HTTPClient struct {
	cfg      HTTPConfig
	client   *http.Client
	observer Observer
	logger   *slog.Logger

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	breaker    circuitbreaker.CircuitBreaker[*Response]
	pollExec   failsafe.Executor[*Response]
	submitExec failsafe.Executor[*Response]
}

// HTTPOption customizes the client.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithObserver attaches a call observer (metrics).
func WithObserver(observer Observer) HTTPOption {
	return func(c *HTTPClient) {
		c.observer = observer
	}
}

// WithLogger attaches a logger for circuit breaker state changes.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithRetryBackoff overrides poll retry behaviour.
func WithRetryBackoff(attempts int, baseDelay, maxDelay time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.retryAttempts = attempts
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// NewHTTPClient constructs a provider client.
func NewHTTPClient(cfg HTTPConfig, opts ...HTTPOption) *HTTPClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProviderTimeout
	}
	c := &HTTPClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		retryAttempts:  defaultRetryAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryAttempts < 0 {
		c.retryAttempts = 0
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = defaultRetryBaseDelay
	}
	if c.retryMaxDelay < c.retryBaseDelay {
		c.retryMaxDelay = c.retryBaseDelay
	}

	retry := retrypolicy.NewBuilder[*Response]().
		HandleIf(func(_ *Response, err error) bool { return IsTransient(err) }).
		WithBackoff(c.retryBaseDelay, c.retryMaxDelay).
		WithMaxRetries(c.retryAttempts).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()

	breakerBuilder := circuitbreaker.NewBuilder[*Response]().
		HandleIf(func(_ *Response, err error) bool { return IsTransient(err) }).
		WithFailureThresholdRatio(5, 10).
		WithDelay(15 * time.Second).
		WithSuccessThreshold(1)
	if c.logger != nil {
		provider := cfg.Provider
		logger := c.logger
		breakerBuilder = breakerBuilder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn("provider circuit breaker state change",
				slog.String("provider", provider),
				slog.String("from_state", breakerStateName(event.OldState)),
				slog.String("to_state", breakerStateName(event.NewState)),
				slog.String("event_type", "circuit_breaker_state"),
			)
		})
	}
	c.breaker = breakerBuilder.Build()
	c.pollExec = failsafe.With[*Response](retry, c.breaker)
	c.submitExec = failsafe.With[*Response](c.breaker)
	return c
}

// Provider returns the provider name used in errors and metrics.
func (c *HTTPClient) Provider() string {
	return c.cfg.Provider
}

// Configured reports whether the client has both an endpoint and credentials.
func (c *HTTPClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIKey != ""
}

// PostJSON submits payload and decodes the response into out (when non-nil).
func (c *HTTPClient) PostJSON(ctx context.Context, operation, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return Wrap(ErrValidation, c.cfg.Provider, operation, "encode payload", err)
	}
	resp, err := c.execute(ctx, c.submitExec, operation, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return c.decode(operation, resp, out)
}

// GetJSON performs an idempotent GET and decodes the response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, operation, path string, query url.Values, out any) error {
	resp, err := c.execute(ctx, c.pollExec, operation, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.decode(operation, resp, out)
}

func (c *HTTPClient) execute(ctx context.Context, exec failsafe.Executor[*Response], operation, method, path string, query url.Values, body []byte) (*Response, error) {
	if !c.Configured() {
		return nil, Wrap(ErrConfiguration, c.cfg.Provider, operation, "base url and api key required", nil)
	}
	start := time.Now()
	resp, err := exec.WithContext(ctx).Get(func() (*Response, error) {
		return c.attempt(ctx, operation, method, path, query, body)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = &ProviderError{Provider: c.cfg.Provider, Operation: operation, Kind: KindTransient, Err: err}
		c.observe(operation, "circuit_open", start)
		return nil, err
	}
	switch {
	case err == nil:
		c.observe(operation, "success", start)
	case IsPermanent(err):
		c.observe(operation, "permanent", start)
	default:
		c.observe(operation, "transient", start)
	}
	return resp, err
}

func (c *HTTPClient) attempt(ctx context.Context, operation, method, path string, query url.Values, body []byte) (*Response, error) {
	endpoint := c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, Wrap(ErrValidation, c.cfg.Provider, operation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AuthHeader == "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	} else {
		req.Header.Set(c.cfg.AuthHeader, c.cfg.APIKey)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, NewTransportError(c.cfg.Provider, operation, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewTransportError(c.cfg.Provider, operation, fmt.Errorf("read body: %w", err))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, NewStatusError(c.cfg.Provider, operation, httpResp.StatusCode, string(data))
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: data}, nil
}

func (c *HTTPClient) decode(operation string, resp *Response, out any) error {
	if out == nil || resp == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return NewPermanentError(c.cfg.Provider, operation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *HTTPClient) observe(operation, outcome string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveProviderCall(c.cfg.Provider, operation, outcome, time.Since(start))
}

func breakerStateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}
