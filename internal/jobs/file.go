// Package jobs loads job definitions from a YAML file and turns them into
// runnable sync and backfill jobs.
//
// A job file names its sources and destinations once and lets any number of
// jobs refer to them:
//
//	sources:
//	  kiot:
//	    type: kiotviet
//	    retailer: ${KIOT_RETAILER}
//	    client_id: aws-sm://prod/kiot#client_id
//	    client_secret: aws-sm://prod/kiot#client_secret
//	destinations:
//	  base:
//	    type: lark
//	    app_id: ${LARK_APP_ID}
//	    app_secret: ${LARK_APP_SECRET}
//	    base_token: bascnXXXX
//	jobs:
//	  - name: products
//	    sources: [kiot]
//	    destination: base
//	    table: Products
//	    identity: code
//	    fingerprint: hash
//	    fields:
//	      - {source: code, label: SKU}
//	      - {source: hash, label: Hash}
//
// ${VAR} references are expanded from the environment before parsing. Values
// of the form aws-sm://secret-id#key are resolved when the job is built.
package jobs

import (
	"fmt"
	"os"
	"slices"
	"time"
	_ "time/tzdata" // window dates are read in named zones

	"github.com/goccy/go-yaml"

	"github.com/agentstation/rowsync/internal/secrets"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/normalize"
)

// Mode selects which engine a job runs on.
type Mode string

const (
	// ModeSync reconciles source records into the destination table.
	ModeSync Mode = "sync"
	// ModeBackfill fills one empty column from source values.
	ModeBackfill Mode = "backfill"
)

// Source types.
const (
	TypeKiotViet = "kiotviet"
	TypeJSONFile = "jsonfile"
)

// Destination types.
const (
	TypeLark   = "lark"
	TypeSQLite = "sqlite"
)

// File is a parsed job file.
type File struct {
	Path         string                     `yaml:"-"`
	Defaults     Defaults                   `yaml:"defaults"`
	Sources      map[string]SourceSpec      `yaml:"sources"`
	Destinations map[string]DestinationSpec `yaml:"destinations"`
	Jobs         []Spec                     `yaml:"jobs"`
}

// Defaults apply to every job in the file.
type Defaults struct {
	// Timezone is used to read window dates. Defaults to UTC.
	Timezone string `yaml:"timezone"`
	// WindowPad widens every window on both sides. Defaults to 24h.
	WindowPad string `yaml:"window_pad"`
}

// SourceSpec configures one named source.
type SourceSpec struct {
	Type string `yaml:"type"`

	// kiotviet
	Retailer     string         `yaml:"retailer"`
	ClientID     string         `yaml:"client_id"`
	ClientSecret string         `yaml:"client_secret"`
	AuthURL      string         `yaml:"auth_url"`
	APIURL       string         `yaml:"api_url"`
	Lowercase    []string       `yaml:"lowercase"`
	Defaults     map[string]any `yaml:"defaults"`

	// jsonfile
	Path string `yaml:"path"`
	Root string `yaml:"root"`

	// Fields maps record field names to paths in the upstream payload.
	Fields  map[string]string `yaml:"fields"`
	Timeout string            `yaml:"timeout"`
}

// DestinationSpec configures one named destination.
type DestinationSpec struct {
	Type string `yaml:"type"`

	// lark
	AppID         string `yaml:"app_id"`
	AppSecret     string `yaml:"app_secret"`
	BaseToken     string `yaml:"base_token"`
	BaseURL       string `yaml:"base_url"`
	CreateMissing bool   `yaml:"create_missing"`
	PageSize      int    `yaml:"page_size"`
	Timeout       string `yaml:"timeout"`

	// sqlite
	Path string `yaml:"path"`
}

// WindowSpec restricts the destination snapshot to a date range. Dates are
// YYYY-MM-DD and inclusive.
type WindowSpec struct {
	Field string `yaml:"field"`
	From  string `yaml:"from"`
	To    string `yaml:"to"`
}

// Spec is one job entry.
type Spec struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Mode        Mode              `yaml:"mode"`
	Sources     []string          `yaml:"sources"`
	Destination string            `yaml:"destination"`
	Table       string            `yaml:"table"`
	Filters     map[string]string `yaml:"filters"`
	Window      *WindowSpec       `yaml:"window"`

	// sync
	Identity     string            `yaml:"identity"`
	Fingerprint  string            `yaml:"fingerprint"`
	Fields       normalize.Mapping `yaml:"fields"`
	FoldIdentity bool              `yaml:"fold_identity"`

	// backfill
	IdentityLabel string         `yaml:"identity_label"`
	Value         string         `yaml:"value"`
	Target        string         `yaml:"target"`
	Kind          normalize.Kind `yaml:"kind"`
}

// EffectiveMode returns the job mode, defaulting to sync.
func (s Spec) EffectiveMode() Mode {
	if s.Mode == "" {
		return ModeSync
	}
	return s.Mode
}

// Load reads, expands, and validates the job file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	return parse(data, path)
}

// Parse expands environment references in data and parses it as a job file.
func Parse(data []byte) (*File, error) {
	return parse(data, "")
}

func parse(data []byte, path string) (*File, error) {
	expanded := os.ExpandEnv(string(data))

	f := File{Path: path}
	if err := yaml.UnmarshalWithOptions([]byte(expanded), &f, yaml.Strict()); err != nil {
		return nil, errors.NewParseError("yaml", path, yaml.FormatError(err, false, true), err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that every job is complete and refers to declared
// sources and destinations.
func (f *File) Validate() error {
	if _, err := f.location(); err != nil {
		return err
	}
	if _, err := f.pad(); err != nil {
		return err
	}
	for name, src := range f.Sources {
		switch src.Type {
		case TypeKiotViet:
			if src.Retailer == "" || src.ClientID == "" || src.ClientSecret == "" {
				return errors.NewValidationError("sources."+name, nil, "retailer, client_id and client_secret are required")
			}
		case TypeJSONFile:
			if src.Path == "" {
				return errors.NewValidationError("sources."+name+".path", nil, "is required")
			}
		default:
			return errors.NewValidationError("sources."+name+".type", src.Type, "unknown source type")
		}
		if _, err := duration(src.Timeout); err != nil {
			return errors.NewValidationError("sources."+name+".timeout", src.Timeout, err.Error())
		}
	}
	for name, dst := range f.Destinations {
		switch dst.Type {
		case TypeLark:
			if dst.AppID == "" || dst.AppSecret == "" || dst.BaseToken == "" {
				return errors.NewValidationError("destinations."+name, nil, "app_id, app_secret and base_token are required")
			}
		case TypeSQLite:
			if dst.Path == "" {
				return errors.NewValidationError("destinations."+name+".path", nil, "is required")
			}
		default:
			return errors.NewValidationError("destinations."+name+".type", dst.Type, "unknown destination type")
		}
		if _, err := duration(dst.Timeout); err != nil {
			return errors.NewValidationError("destinations."+name+".timeout", dst.Timeout, err.Error())
		}
	}

	seen := make(map[string]bool, len(f.Jobs))
	for i, job := range f.Jobs {
		field := fmt.Sprintf("jobs[%d]", i)
		if job.Name == "" {
			return errors.NewValidationError(field+".name", nil, "is required")
		}
		if seen[job.Name] {
			return errors.NewValidationError(field+".name", job.Name, "duplicate job name")
		}
		seen[job.Name] = true
		if err := f.validateJob(field, job); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) validateJob(field string, job Spec) error {
	if job.Table == "" {
		return errors.NewValidationError(field+".table", nil, "is required")
	}
	if len(job.Sources) == 0 {
		return errors.NewValidationError(field+".sources", nil, "at least one source is required")
	}
	for _, name := range job.Sources {
		if _, ok := f.Sources[name]; !ok {
			return errors.NewValidationError(field+".sources", name, "undeclared source")
		}
	}
	if _, ok := f.Destinations[job.Destination]; !ok {
		return errors.NewValidationError(field+".destination", job.Destination, "undeclared destination")
	}
	if job.Window != nil {
		if _, err := f.window(job.Window, "", ""); err != nil {
			return errors.WrapValidation(field+".window", err)
		}
	}

	switch job.EffectiveMode() {
	case ModeSync:
		if job.Identity == "" || job.Fingerprint == "" {
			return errors.NewValidationError(field, nil, "identity and fingerprint are required")
		}
		if err := job.Fields.Validate(); err != nil {
			return errors.WrapValidation(field+".fields", err)
		}
	case ModeBackfill:
		if job.Identity == "" || job.IdentityLabel == "" || job.Value == "" || job.Target == "" {
			return errors.NewValidationError(field, nil, "identity, identity_label, value and target are required")
		}
	default:
		return errors.NewValidationError(field+".mode", job.Mode, "must be sync or backfill")
	}
	return nil
}

// Select returns the jobs of the given mode named in names, in file order.
// An empty names selects every job of that mode.
func (f *File) Select(mode Mode, names ...string) ([]Spec, error) {
	for _, name := range names {
		i := slices.IndexFunc(f.Jobs, func(s Spec) bool { return s.Name == name })
		if i < 0 {
			return nil, errors.NewNotFoundError("job", name)
		}
		if got := f.Jobs[i].EffectiveMode(); got != mode {
			return nil, errors.NewValidationError("job", name, fmt.Sprintf("is a %s job", got))
		}
	}

	var out []Spec
	for _, job := range f.Jobs {
		if job.EffectiveMode() != mode {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, job.Name) {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// NeedsSecrets reports whether any credential in the file is a secret reference.
func (f *File) NeedsSecrets() bool {
	for _, src := range f.Sources {
		for _, v := range []string{src.Retailer, src.ClientID, src.ClientSecret} {
			if secrets.IsRef(v) {
				return true
			}
		}
	}
	for _, dst := range f.Destinations {
		for _, v := range []string{dst.AppID, dst.AppSecret, dst.BaseToken} {
			if secrets.IsRef(v) {
				return true
			}
		}
	}
	return false
}

func (f *File) location() (*time.Location, error) {
	if f.Defaults.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(f.Defaults.Timezone)
	if err != nil {
		return nil, errors.NewValidationError("defaults.timezone", f.Defaults.Timezone, "unknown time zone")
	}
	return loc, nil
}

func (f *File) pad() (time.Duration, error) {
	if f.Defaults.WindowPad == "" {
		return -1, nil
	}
	d, err := time.ParseDuration(f.Defaults.WindowPad)
	if err != nil || d < 0 {
		return 0, errors.NewValidationError("defaults.window_pad", f.Defaults.WindowPad, "must be a non-negative duration")
	}
	return d, nil
}

func duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
