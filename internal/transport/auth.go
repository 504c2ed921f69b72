package transport

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Authenticator applies a credential to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request, credential string)
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request, _ string) {
	// No authentication applied
}

// BearerAuth implements Bearer token authentication.
type BearerAuth struct{}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(req *http.Request, credential string) {
	req.Header.Set("Authorization", "Bearer "+credential)
}

// HeaderAuth implements custom header authentication.
type HeaderAuth struct {
	Header string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request, credential string) {
	req.Header.Set(a.Header, credential)
}

// TokenSource supplies the credential applied to each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same credential.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// FetchFunc obtains a fresh token and how long it stays valid.
type FetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// CachedToken caches a fetched token until shortly before it expires.
type CachedToken struct {
	fetch  FetchFunc
	margin time.Duration
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewCachedToken creates a TokenSource that refreshes through fetch once
// fewer than margin remain before expiry.
func NewCachedToken(fetch FetchFunc, margin time.Duration) *CachedToken {
	return &CachedToken{fetch: fetch, margin: margin, now: time.Now}
}

// Token returns the cached token, fetching a new one when it is missing or
// about to expire.
func (c *CachedToken) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(c.margin).Before(c.expires) {
		return c.token, nil
	}
	token, ttl, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expires = c.now().Add(ttl)
	return token, nil
}

// Invalidate drops the cached token so the next call fetches again.
func (c *CachedToken) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expires = time.Time{}
}
