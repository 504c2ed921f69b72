// Package kiotviet reads products from the KiotViet public retail API.
package kiotviet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/agentstation/rowsync/internal/transport"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/record"
	"github.com/agentstation/rowsync/pkg/sources"
)

// Default endpoints.
const (
	DefaultAuthURL = "https://id.kiotviet.vn/connect/token"
	DefaultAPIURL  = "https://public.kiotapi.com"
)

const (
	provider        = "kiotviet"
	scope           = "PublicApi.Access"
	rateLimitedCode = "RateLimited"
	tokenMargin     = 5 * time.Minute
)

// DefaultFields projects the product fields most jobs need. The cost comes
// from the first inventory entry.
var DefaultFields = map[string]string{
	"id":       "id",
	"code":     "code",
	"barcode":  "barCode",
	"name":     "fullName",
	"category": "categoryName",
	"price":    "basePrice",
	"unit":     "unit",
	"active":   "isActive",
	"cost":     "inventories.0.cost",
	"onHand":   "inventories.0.onHand",
	"modified": "modifiedDate",
}

// DefaultDefaults fills a missing inventory cost with zero when the product
// has an inventory entry.
var DefaultDefaults = map[string]any{
	"cost": 0,
}

// Config configures a KiotViet source.
type Config struct {
	ID           sources.ID
	Retailer     string
	ClientID     string
	ClientSecret string

	AuthURL string
	APIURL  string

	// Fields maps record field -> gjson path into each product.
	Fields map[string]string
	// Defaults are used for a field whose value is null or missing while the
	// parent of its path exists.
	Defaults map[string]any
	// Lowercase lists fields whose text values are lowercased.
	Lowercase []string

	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.ID == "":
		return errors.NewValidationError("id", nil, "source id is required")
	case c.Retailer == "":
		return errors.NewValidationError("retailer", nil, "retailer is required")
	case c.ClientID == "" || c.ClientSecret == "":
		return errors.NewValidationError("client_id", nil, "client credentials are required")
	}
	return nil
}

// Source fetches KiotViet products page by page.
type Source struct {
	cfg    Config
	api    *transport.Client
	tokens *transport.CachedToken
	logger *zerolog.Logger
}

var _ sources.Source = (*Source)(nil)

// New creates a KiotViet source.
func New(cfg Config, opts ...transport.Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Fields == nil {
		cfg.Fields = DefaultFields
	}
	if cfg.Defaults == nil {
		cfg.Defaults = DefaultDefaults
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = transport.DefaultHTTPTimeout
	}

	s := &Source{cfg: cfg, logger: cfg.Logger}

	base := append([]transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithLogger(cfg.Logger),
	}, opts...)
	base = base[:len(base):len(base)]

	auth := transport.New(provider, append(base, transport.WithErrorMapper(mapTokenError))...)
	s.tokens = transport.NewCachedToken(func(ctx context.Context) (string, time.Duration, error) {
		return s.fetchToken(ctx, auth)
	}, tokenMargin)

	s.api = transport.New(provider, append(base,
		transport.WithAuth(&transport.BearerAuth{}, s.tokens),
		transport.WithHeader("Retailer", cfg.Retailer),
		transport.WithErrorMapper(s.mapError),
	)...)
	return s, nil
}

// ID implements sources.Source.
func (s *Source) ID() sources.ID {
	return s.cfg.ID
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (s *Source) fetchToken(ctx context.Context, c *transport.Client) (string, time.Duration, error) {
	form := url.Values{
		"scopes":        {scope},
		"grant_type":    {"client_credentials"},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}
	var tok tokenResponse
	if err := c.PostForm(ctx, s.cfg.AuthURL, form, &tok); err != nil {
		return "", 0, err
	}
	if tok.AccessToken == "" {
		return "", 0, errors.NewAuthenticationError(provider, "client_credentials", "token response carried no access token", nil)
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.logger.Debug().Str("source", s.cfg.ID.String()).Dur("ttl", ttl).Msg("Obtained access token")
	return tok.AccessToken, ttl, nil
}

// FetchPage implements sources.Source. cursor maps onto currentItem.
func (s *Source) FetchPage(ctx context.Context, cursor, pageSize int, filters map[string]string) (sources.Page, error) {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("includeInventory", "true")
	if cursor > 0 {
		q.Set("currentItem", strconv.Itoa(cursor))
	}
	for k, v := range filters {
		q.Set(k, v)
	}

	var body json.RawMessage
	if err := s.api.GetJSON(ctx, s.cfg.APIURL+"/products", q, &body); err != nil {
		return sources.Page{}, err
	}
	if code := gjson.GetBytes(body, "responseStatus.errorCode").String(); code != "" {
		return sources.Page{}, s.codeError(code, gjson.GetBytes(body, "responseStatus.message").String())
	}

	data := gjson.GetBytes(body, "data").Array()
	items := make([]record.Record, 0, len(data))
	for _, item := range data {
		items = append(items, s.project(item.Raw))
	}

	hasMore := len(data) == pageSize
	if total := gjson.GetBytes(body, "total"); total.Exists() {
		hasMore = cursor+len(data) < int(total.Int())
	}
	return sources.Page{Items: items, HasMore: hasMore}, nil
}

func (s *Source) project(raw string) record.Record {
	rec := record.FromJSON(raw, s.cfg.Fields)
	for field, def := range s.cfg.Defaults {
		if v, ok := rec[field]; ok && v != nil {
			continue
		}
		path, ok := s.cfg.Fields[field]
		if !ok {
			continue
		}
		if i := strings.LastIndex(path, "."); i > 0 && gjson.Get(raw, path[:i]).Exists() {
			rec[field] = def
		}
	}
	for _, field := range s.cfg.Lowercase {
		if v, ok := rec[field].(string); ok {
			rec[field] = strings.ToLower(v)
		}
	}
	return rec
}

func (s *Source) codeError(code, message string) error {
	if code == rateLimitedCode {
		return errors.NewRateLimitError(provider, code, 0)
	}
	return &errors.APIError{Provider: provider, Code: code, Message: message, Endpoint: "/products"}
}

// mapError handles API failures. An expired token gets one more chance
// through retry with a fresh token.
func (s *Source) mapError(status int, h http.Header, body []byte) error {
	if code := gjson.GetBytes(body, "responseStatus.errorCode").String(); code == rateLimitedCode {
		return errors.NewRateLimitError(provider, code, transport.RetryAfter(h))
	}
	if status == http.StatusUnauthorized {
		s.tokens.Invalidate()
		return errors.NewTransientError("kiotviet products", &errors.APIError{
			Provider:   provider,
			StatusCode: status,
			Message:    "access token rejected",
		})
	}
	return nil
}

func mapTokenError(status int, _ http.Header, body []byte) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return nil
	}
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = http.StatusText(status)
	}
	return errors.NewAuthenticationError(provider, "client_credentials", msg, nil)
}
