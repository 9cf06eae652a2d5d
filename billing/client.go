package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Elastic Cloud API host.
const DefaultBaseURL = "https://api.elastic-cloud.com"

const maxErrorBody = 512

// Config holds what the client needs to reach the billing API.
type Config struct {
	BaseURL string
	APIKey  string
	Window  Window
	// RequestsPerSecond caps the request rate; zero disables the limit.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client reads the billing API. The lookback window is evaluated on every
// call so a long running process keeps moving forward in time.
type Client struct {
	baseURL string
	apiKey  string
	window  Window
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock replaces time.Now when computing the lookback window.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a billing API client.
func NewClient(cfg Config, opts ...Option) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		window:  cfg.Window,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get reads endpoint over the current lookback window and returns the decoded body.
// Every failure is a *FetchError.
func (c *Client) Get(ctx context.Context, endpoint string) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}

	from, to := c.window.Range(c.now())
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", authorization(c.apiKey))
	req.Header.Set("Accept", "application/json")

	log.Debugf("calling billing api [endpoint=%s, from=%s, to=%s]", endpoint, from, to)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FetchError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: resp.Status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

// OrganizationID looks up the organization the API key belongs to.
func (c *Client) OrganizationID(ctx context.Context) (string, error) {
	account, err := c.Get(ctx, AccountEndpoint)
	if err != nil {
		return "", err
	}
	switch id := account["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("billing api %s: response has no organization id", AccountEndpoint)
}

// authorization sends bare keys with the ApiKey scheme and keys that
// already name a scheme as they are.
func authorization(key string) string {
	if strings.Contains(key, " ") {
		return key
	}
	return "ApiKey " + key
}
