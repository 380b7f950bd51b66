// Package backend is a REST client for the hosted backend the listing app
// runs on: PostgREST-style document queries, token based auth and public
// file storage.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/truehome/estate/internal/metrics"
	"github.com/truehome/estate/internal/tokenstore"
	"github.com/truehome/estate/pkg/logger"
)

// RequestIDHeader carries a per-request id the backend echoes in its logs.
const RequestIDHeader = "X-Request-ID"

// Client is a backend REST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *Breaker
	tokens     tokenstore.Store
	log        *logger.Logger
	now        func() time.Time
}

// Config configures New. URL and APIKey are required.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client

	// RequestsPerSecond throttles outgoing requests; zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Breaker fails requests fast while the backend keeps erroring.
	// Zero fields use DefaultBreakerConfig.
	Breaker BreakerConfig

	// Tokens holds the signed-in session. Defaults to an in-memory store.
	Tokens tokenstore.Store
	Logger *logger.Logger
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breakerCfg := cfg.Breaker
	userHook := breakerCfg.OnChange
	breakerCfg.OnChange = func(from, to BreakerState) {
		metrics.SetCircuitState(int(to))
		if userHook != nil {
			userHook(from, to)
		}
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = tokenstore.NewMemoryStore()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
		breaker:    NewBreaker(breakerCfg),
		tokens:     tokens,
		log:        logger.OrDiscard(cfg.Logger),
		now:        time.Now,
	}, nil
}

// Tokens returns the store holding the signed-in session.
func (c *Client) Tokens() tokenstore.Store {
	return c.tokens
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// setHeaders attaches the project key and, when signed in, the user's token so
// row-level policies see the caller.
func (c *Client) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("apikey", c.apiKey)

	bearer := c.apiKey
	if tok, err := c.tokens.Load(ctx); err == nil && tok != nil && !tok.Expired(c.now()) {
		bearer = tok.AccessToken
	}
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	id := GetRequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set(RequestIDHeader, id)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	ctx := req.Context()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	ticket, err := c.breaker.Acquire()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(req.Method, req.URL.Path, 0, time.Since(start))
		if errors.Is(err, context.Canceled) {
			ticket.Release()
		} else {
			ticket.Report(err)
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordBackendRequest(req.Method, req.URL.Path, resp.StatusCode, time.Since(start))
	if err != nil {
		ticket.Report(err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		ticket.Report(&APIError{StatusCode: resp.StatusCode})
	} else {
		ticket.Report(nil)
	}

	c.log.WithField("method", req.Method).
		WithField("path", req.URL.Path).
		WithField("status", resp.StatusCode).
		WithField("request_id", req.Header.Get(RequestIDHeader)).
		Debug("backend request")

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

// requestIDKey is the context key for request ID.
type requestIDKey struct{}

// WithRequestID pins the request id sent with backend calls made under ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the id set by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
