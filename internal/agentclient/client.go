// Package agentclient consumes the chat stream and the catalog and order
// endpoints of the commerce agent.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"commerce-agent/internal/catalog"
	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"
	"commerce-agent/internal/stream"
	"commerce-agent/internal/util"

	"go.uber.org/zap"
)

// Defaults for Client
const (
	DefaultConnectTimeout = 8 * time.Second
	DefaultRetries        = 5
	DefaultSearchCacheTTL = 30 * time.Second
)

// RetryInfo describes a scheduled retry
type RetryInfo struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// Client talks to the agent HTTP API
type Client struct {
	baseURL        string
	clientID       string
	httpClient     *http.Client
	connectTimeout time.Duration
	retries        int
	backoff        stream.Backoff
	searchCache    *catalog.MemoryCache
	logger         *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. It must not set an overall
// timeout, since chat responses are long-lived streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientID sets the id sent with every chat request
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithConnectTimeout bounds the wait for response headers
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithRetries sets how many times a failed chat request is retried
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithBackoff sets the retry delay policy
func WithBackoff(b stream.Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithSearchCacheTTL sets how long search results are reused
func WithSearchCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.searchCache = catalog.NewMemoryCache(ttl, nil) }
}

// New creates a new agent client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		connectTimeout: DefaultConnectTimeout,
		retries:        DefaultRetries,
		backoff:        stream.DefaultBackoff(),
		searchCache:    catalog.NewMemoryCache(DefaultSearchCacheTTL, nil),
		logger:         util.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends prompt and passes every stream event to fn. Transport
// failures restart the whole request with backoff; onRetry, if set, is
// told about each scheduled retry. Caller cancellation, HTTP 4xx, an error
// event or an error from fn end the call without retrying.
func (c *Client) Chat(ctx context.Context, prompt string, fn func(models.StreamEvent) error, onRetry func(RetryInfo)) error {
	attempt := 0
	for {
		err := c.chatOnce(ctx, prompt, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", errs.ErrCanceled, ctx.Err())
		}
		if !errs.Retryable(err) {
			return err
		}

		attempt++
		if attempt > c.retries {
			return fmt.Errorf("giving up after %d retries: %w", c.retries, err)
		}

		delay := c.backoff.Delay(attempt)
		c.logger.Warn("Chat stream failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if onRetry != nil {
			onRetry(RetryInfo{Attempt: attempt, Delay: delay, Err: err})
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", errs.ErrCanceled, ctx.Err())
		case <-timer.C:
		}
	}
}

type chatRequest struct {
	Prompt   string `json:"prompt"`
	ClientID string `json:"clientId,omitempty"`
}

func (c *Client) chatOnce(ctx context.Context, prompt string, fn func(models.StreamEvent) error) error {
	body, err := json.Marshal(chatRequest{Prompt: prompt, ClientID: c.clientID})
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	timer := time.AfterFunc(c.connectTimeout, func() {
		timedOut.Store(true)
		cancel()
	})

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		timer.Stop()
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if !timer.Stop() && timedOut.Load() {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("%w: connect timeout after %s", errs.ErrTransport, c.connectTimeout)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	var upstream error
	err = stream.Decode(resp.Body, func(ev models.StreamEvent) error {
		if ev.Type == models.StreamEventError {
			upstream = fmt.Errorf("%w: %s", errs.ErrUpstream, ev.Error)
		}
		return fn(ev)
	})
	if err != nil {
		return err
	}
	return upstream
}

type errorBody struct {
	Error string `json:"error"`
}

// statusError maps non-2xx responses onto the error taxonomy.
// Only 5xx responses are transport failures.
func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", errs.ErrTransport, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", errs.ErrNotFound, msg)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", errs.ErrMalformedInput, resp.StatusCode, msg)
	}
}
