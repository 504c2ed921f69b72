// Package transport provides the HTTP client shared by the remote sources
// and destinations.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// ErrorMapper turns a failed response into a provider-specific error. It
// returns nil to fall back to the generic mapping.
type ErrorMapper func(status int, header http.Header, body []byte) error

// Client provides HTTP client functionality with authentication.
type Client struct {
	provider string
	http     *http.Client
	auth     Authenticator
	tokens   TokenSource
	headers  http.Header
	mapError ErrorMapper
	logger   *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithAuth applies credentials from tokens using auth on every request.
func WithAuth(auth Authenticator, tokens TokenSource) Option {
	return func(c *Client) {
		c.auth = auth
		c.tokens = tokens
	}
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithErrorMapper installs provider-specific error mapping.
func WithErrorMapper(fn ErrorMapper) Option {
	return func(c *Client) {
		c.mapError = fn
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a new transport client for the named provider.
func New(provider string, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		http:     &http.Client{Timeout: DefaultHTTPTimeout},
		auth:     &NoAuth{},
		headers:  make(http.Header),
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider name used in errors and logs.
func (c *Client) Provider() string {
	return c.provider
}

// Do performs an HTTP request with authentication and common headers applied.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.tokens != nil {
		credential, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		c.auth.Apply(req, credential)
	}

	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.WrapResource("send", "request", req.Method+" "+req.URL.Path, err)
	}
	c.logger.Debug().
		Str("provider", c.provider).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("HTTP request")
	return resp, nil
}

// GetJSON sends a GET request with query and decodes the JSON response into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, target any) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.WrapResource("create", "request", "GET "+rawURL, err)
	}
	return c.send(ctx, req, target)
}

// PostJSON sends body as JSON and decodes the JSON response into target.
func (c *Client) PostJSON(ctx context.Context, rawURL string, query url.Values, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WrapParse("json", "request body", err)
	}
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return errors.WrapResource("create", "request", "POST "+rawURL, err)
	}
	return c.send(ctx, req, target)
}

// PostForm sends form as application/x-www-form-urlencoded and decodes the
// JSON response into target.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.WrapResource("create", "request", "POST "+rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(ctx, req, target)
}

func (c *Client) send(ctx context.Context, req *http.Request, target any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return c.DecodeResponse(resp, target)
}
