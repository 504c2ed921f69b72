// Package lark writes rows to a Lark Base (Bitable) app through the Lark
// open platform API.
package lark

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/internal/transport"
	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/normalize"
)

// DefaultBaseURL is the Lark open platform endpoint.
const DefaultBaseURL = "https://open.larksuite.com"

const (
	provider = "lark"

	// MaxBatchSize is the largest record batch sent per create or update call.
	MaxBatchSize = 500

	tokenMargin   = 5 * time.Minute
	tableCacheTTL = 10 * time.Minute
)

// Lark error codes the client reacts to.
const (
	codeOK               = 0
	codeFrequencyLimit   = 99991400
	codeTooManyRequests  = 1254290
	codeWriteConflict    = 1254291
	codeTokenInvalid     = 99991663
	codeTokenExpired     = 99991661
	codeTenantTokenError = 99991664
)

// Config configures a Lark Base destination.
type Config struct {
	AppID     string
	AppSecret string
	// BaseToken is the app_token of the Base holding the tables.
	BaseToken string
	BaseURL   string

	// CreateMissing creates a table that cannot be resolved by name, using
	// Schema for its columns.
	CreateMissing bool
	Schema        normalize.Mapping

	PageSize int
	Timeout  time.Duration
	Logger   *zerolog.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.AppID == "" || c.AppSecret == "":
		return errors.NewValidationError("app_id", nil, "app credentials are required")
	case c.BaseToken == "":
		return errors.NewValidationError("base_token", nil, "base token is required")
	case c.PageSize < 0 || c.PageSize > constants.MaxPageSize:
		return errors.NewValidationError("page_size", c.PageSize, "page size out of range")
	case c.CreateMissing && len(c.Schema) == 0:
		return errors.NewValidationError("schema", nil, "a schema is required to create missing tables")
	}
	return nil
}

// Destination is a Lark Base app.
type Destination struct {
	cfg      Config
	api      *transport.Client
	tokens   *transport.CachedToken
	tableIDs *gocache.Cache
	logger   *zerolog.Logger
}

var (
	_ destinations.Destination = (*Destination)(nil)
	_ destinations.Resolver    = (*Destination)(nil)
)

// New creates a Lark Base destination.
func New(cfg Config, opts ...transport.Option) (*Destination, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PageSize == 0 {
		cfg.PageSize = constants.LarkPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = transport.DefaultHTTPTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	d := &Destination{
		cfg:      cfg,
		tableIDs: gocache.New(tableCacheTTL, 2*tableCacheTTL),
		logger:   cfg.Logger,
	}

	base := append([]transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithLogger(cfg.Logger),
		transport.WithErrorMapper(d.mapHTTPError),
	}, opts...)
	base = base[:len(base):len(base)]

	auth := transport.New(provider, base...)
	d.tokens = transport.NewCachedToken(func(ctx context.Context) (string, time.Duration, error) {
		return d.fetchToken(ctx, auth)
	}, tokenMargin)
	d.api = transport.New(provider, append(base, transport.WithAuth(&transport.BearerAuth{}, d.tokens))...)
	return d, nil
}

// ID implements destinations.Destination.
func (d *Destination) ID() string {
	return "lark:" + d.cfg.BaseToken
}

// MaxBatchSize implements destinations.Destination.
func (d *Destination) MaxBatchSize() int {
	return MaxBatchSize
}

// envelope is the common Lark response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// err converts a non-zero envelope code into an error.
func (d *Destination) err(code int, msg, endpoint string) error {
	switch code {
	case codeOK:
		return nil
	case codeFrequencyLimit, codeTooManyRequests:
		return errors.NewRateLimitError(provider, strconv.Itoa(code), 0)
	case codeWriteConflict:
		return errors.NewTransientError(endpoint, &errors.APIError{Provider: provider, Code: strconv.Itoa(code), Message: msg, Endpoint: endpoint})
	case codeTokenInvalid, codeTokenExpired:
		d.tokens.Invalidate()
		return errors.NewTransientError(endpoint, &errors.APIError{Provider: provider, Code: strconv.Itoa(code), Message: msg, Endpoint: endpoint})
	case codeTenantTokenError:
		return errors.NewAuthenticationError(provider, "tenant_token", msg, nil)
	}
	return &errors.APIError{Provider: provider, Code: strconv.Itoa(code), Message: msg, Endpoint: endpoint}
}

// mapHTTPError reads the Lark code out of a failed response body.
func (d *Destination) mapHTTPError(status int, h http.Header, body []byte) error {
	var env envelope
	if json.Unmarshal(body, &env) != nil || env.Code == codeOK {
		return nil
	}
	err := d.err(env.Code, env.Msg, "")
	var rl *errors.RateLimitError
	if stderrors.As(err, &rl) {
		rl.RetryAfter = transport.RetryAfter(h)
	}
	var api *errors.APIError
	if stderrors.As(err, &api) && api.StatusCode == 0 {
		api.StatusCode = status
	}
	return err
}

type tokenResponse struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Token  string `json:"tenant_access_token"`
	Expire int    `json:"expire"`
}

func (d *Destination) fetchToken(ctx context.Context, c *transport.Client) (string, time.Duration, error) {
	var tok tokenResponse
	err := c.PostJSON(ctx, d.cfg.BaseURL+"/open-apis/auth/v3/tenant_access_token/internal", nil, map[string]string{
		"app_id":     d.cfg.AppID,
		"app_secret": d.cfg.AppSecret,
	}, &tok)
	if err != nil {
		return "", 0, err
	}
	if tok.Code != codeOK || tok.Token == "" {
		return "", 0, errors.NewAuthenticationError(provider, "tenant_token", tok.Msg, nil)
	}
	ttl := time.Duration(tok.Expire) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return tok.Token, ttl, nil
}

// call posts or gets endpoint and unwraps the envelope into data.
func (d *Destination) call(ctx context.Context, method, endpoint string, query map[string]string, body, data any) error {
	q := make(url.Values, len(query))
	for k, v := range query {
		q.Set(k, v)
	}
	var env envelope
	var err error
	if method == http.MethodGet {
		err = d.api.GetJSON(ctx, d.cfg.BaseURL+endpoint, q, &env)
	} else {
		err = d.api.PostJSON(ctx, d.cfg.BaseURL+endpoint, q, body, &env)
	}
	if err != nil {
		return err
	}
	if err := d.err(env.Code, env.Msg, endpoint); err != nil {
		return err
	}
	if data == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return errors.WrapParse("json", endpoint, err)
	}
	return nil
}

func (d *Destination) appPath() string {
	return "/open-apis/bitable/v1/apps/" + d.cfg.BaseToken
}
