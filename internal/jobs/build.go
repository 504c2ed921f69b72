package jobs

import (
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/internal/destinations/lark"
	"github.com/agentstation/rowsync/internal/destinations/sqlite"
	"github.com/agentstation/rowsync/internal/secrets"
	"github.com/agentstation/rowsync/internal/sources/jsonfile"
	"github.com/agentstation/rowsync/internal/sources/kiotviet"
	"github.com/agentstation/rowsync/internal/transport"
	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/normalize"
	"github.com/agentstation/rowsync/pkg/sources"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// SecretResolver turns a secret reference into its value. Plain values are
// returned unchanged.
type SecretResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// Range overrides a job's window bounds, typically from the command line.
// Empty bounds keep the job's own.
type Range struct {
	From string
	To   string
}

// Builder constructs runnable jobs from a File. Sources and SQLite stores
// are shared between the jobs it builds; Close releases them.
type Builder struct {
	file      *File
	secrets   SecretResolver
	logger    *zerolog.Logger
	transport []transport.Option

	mu      sync.Mutex
	sources map[string]sources.Source
	stores  map[string]*sqlite.Store
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithSecrets sets the resolver for secret references.
func WithSecrets(r SecretResolver) BuilderOption {
	return func(b *Builder) { b.secrets = r }
}

// WithLogger sets the logger handed to sources and destinations.
func WithLogger(l *zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithTransport adds HTTP client options to every remote source and destination.
func WithTransport(opts ...transport.Option) BuilderOption {
	return func(b *Builder) { b.transport = append(b.transport, opts...) }
}

// NewBuilder creates a Builder for f.
func NewBuilder(f *File, opts ...BuilderOption) *Builder {
	b := &Builder{
		file:    f,
		logger:  logging.Default(),
		sources: make(map[string]sources.Source),
		stores:  make(map[string]*sqlite.Store),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Sync builds the sync job described by spec.
func (b *Builder) Sync(ctx context.Context, spec Spec, r Range) (rowsync.Job, error) {
	if spec.EffectiveMode() != ModeSync {
		return rowsync.Job{}, errors.NewValidationError("job", spec.Name, "is not a sync job")
	}
	srcs, err := b.sourceList(ctx, spec.Sources)
	if err != nil {
		return rowsync.Job{}, err
	}
	dst, err := b.destination(ctx, spec.Destination, spec.Fields)
	if err != nil {
		return rowsync.Job{}, err
	}
	window, err := b.file.window(spec.Window, r.From, r.To)
	if err != nil {
		return rowsync.Job{}, errors.WrapValidation(spec.Name+".window", err)
	}
	return rowsync.Job{
		Name:             spec.Name,
		Table:            spec.Table,
		Sources:          srcs,
		Destination:      dst,
		Mapping:          spec.Fields,
		IdentityField:    spec.Identity,
		FingerprintField: spec.Fingerprint,
		Window:           window,
		Filters:          spec.Filters,
	}, nil
}

// Backfill builds the backfill job described by spec.
func (b *Builder) Backfill(ctx context.Context, spec Spec, r Range) (rowsync.BackfillJob, error) {
	if spec.EffectiveMode() != ModeBackfill {
		return rowsync.BackfillJob{}, errors.NewValidationError("job", spec.Name, "is not a backfill job")
	}
	srcs, err := b.sourceList(ctx, spec.Sources)
	if err != nil {
		return rowsync.BackfillJob{}, err
	}
	dst, err := b.destination(ctx, spec.Destination, nil)
	if err != nil {
		return rowsync.BackfillJob{}, err
	}
	window, err := b.file.window(spec.Window, r.From, r.To)
	if err != nil {
		return rowsync.BackfillJob{}, errors.WrapValidation(spec.Name+".window", err)
	}
	kind := spec.Kind
	if kind == "" {
		kind = normalize.KindText
	}
	return rowsync.BackfillJob{
		Name:          spec.Name,
		Table:         spec.Table,
		Sources:       srcs,
		Destination:   dst,
		IdentityField: spec.Identity,
		IdentityLabel: spec.IdentityLabel,
		ValueField:    spec.Value,
		TargetLabel:   spec.Target,
		Kind:          kind,
		Window:        window,
		Filters:       spec.Filters,
	}, nil
}

// Close releases every store opened by the builder.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, store := range b.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, errors.WrapIO("close", name, err))
		}
		delete(b.stores, name)
	}
	return stderrors.Join(errs...)
}

var _ io.Closer = (*Builder)(nil)

func (b *Builder) sourceList(ctx context.Context, names []string) ([]sources.Source, error) {
	out := make([]sources.Source, 0, len(names))
	for _, name := range names {
		src, err := b.source(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (b *Builder) source(ctx context.Context, name string) (sources.Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if src, ok := b.sources[name]; ok {
		return src, nil
	}
	spec, ok := b.file.Sources[name]
	if !ok {
		return nil, errors.NewNotFoundError("source", name)
	}
	timeout, _ := duration(spec.Timeout)

	var (
		src sources.Source
		err error
	)
	switch spec.Type {
	case TypeKiotViet:
		var creds [3]string
		for i, v := range []string{spec.Retailer, spec.ClientID, spec.ClientSecret} {
			if creds[i], err = b.resolve(ctx, v); err != nil {
				return nil, errors.NewConfigError("source "+name, "failed to resolve credentials", err)
			}
		}
		src, err = kiotviet.New(kiotviet.Config{
			ID:           sources.ID(name),
			Retailer:     creds[0],
			ClientID:     creds[1],
			ClientSecret: creds[2],
			AuthURL:      spec.AuthURL,
			APIURL:       spec.APIURL,
			Fields:       spec.Fields,
			Defaults:     spec.Defaults,
			Lowercase:    spec.Lowercase,
			Timeout:      timeout,
			Logger:       b.logger,
		}, b.transport...)
	case TypeJSONFile:
		src, err = jsonfile.New(jsonfile.Config{
			ID:     sources.ID(name),
			Path:   b.file.resolvePath(spec.Path),
			Root:   spec.Root,
			Fields: spec.Fields,
		})
	default:
		return nil, errors.NewValidationError("sources."+name+".type", spec.Type, "unknown source type")
	}
	if err != nil {
		return nil, err
	}
	b.sources[name] = src
	return src, nil
}

// destination builds the named destination. Lark destinations are built per
// job so that missing tables are created with that job's columns.
func (b *Builder) destination(ctx context.Context, name string, schema normalize.Mapping) (destinations.Destination, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	spec, ok := b.file.Destinations[name]
	if !ok {
		return nil, errors.NewNotFoundError("destination", name)
	}

	switch spec.Type {
	case TypeSQLite:
		if store, ok := b.stores[name]; ok {
			return store, nil
		}
		store, err := sqlite.Open(b.file.resolvePath(spec.Path))
		if err != nil {
			return nil, err
		}
		b.stores[name] = store
		return store, nil

	case TypeLark:
		var creds [3]string
		for i, v := range []string{spec.AppID, spec.AppSecret, spec.BaseToken} {
			var err error
			if creds[i], err = b.resolve(ctx, v); err != nil {
				return nil, errors.NewConfigError("destination "+name, "failed to resolve credentials", err)
			}
		}
		timeout, _ := duration(spec.Timeout)
		return lark.New(lark.Config{
			AppID:         creds[0],
			AppSecret:     creds[1],
			BaseToken:     creds[2],
			BaseURL:       spec.BaseURL,
			CreateMissing: spec.CreateMissing && len(schema) > 0,
			Schema:        schema,
			PageSize:      spec.PageSize,
			Timeout:       timeout,
			Logger:        b.logger,
		}, b.transport...)
	}
	return nil, errors.NewValidationError("destinations."+name+".type", spec.Type, "unknown destination type")
}

func (b *Builder) resolve(ctx context.Context, value string) (string, error) {
	if !secrets.IsRef(value) {
		return value, nil
	}
	if b.secrets == nil {
		return "", errors.NewConfigError("secrets", "no secret resolver configured for "+value, nil)
	}
	ctx, cancel := context.WithTimeout(ctx, constants.SecretLookupTimeout)
	defer cancel()
	return b.secrets.Resolve(ctx, value)
}

// window builds the destination window for ws, with from and to replacing
// its bounds when set. The result is padded by the file's window_pad.
func (f *File) window(ws *WindowSpec, from, to string) (*destinations.Window, error) {
	if ws == nil {
		if from != "" || to != "" {
			return nil, errors.NewValidationError("window", nil, "job has no window field")
		}
		return nil, nil
	}
	loc, err := f.location()
	if err != nil {
		return nil, err
	}
	pad, err := f.pad()
	if err != nil {
		return nil, err
	}
	if pad < 0 {
		pad = constants.DefaultWindowPad
	}
	if from == "" {
		from = ws.From
	}
	if to == "" {
		to = ws.To
	}

	w := &destinations.Window{Field: ws.Field}
	if from != "" {
		if w.From, err = parseDate(from, loc); err != nil {
			return nil, errors.NewValidationError("from", from, "expected YYYY-MM-DD")
		}
	}
	if to != "" {
		t, err := parseDate(to, loc)
		if err != nil {
			return nil, errors.NewValidationError("to", to, "expected YYYY-MM-DD")
		}
		w.To = t.AddDate(0, 0, 1)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w.Pad(pad), nil
}

// resolvePath reads relative paths from the job file's directory.
func (f *File) resolvePath(p string) string {
	if f.Path == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(f.Path), p)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
