// Package constants provides shared constants used throughout rowsync.
// This includes timeouts, batch limits, retry budgets, and file permissions
// that should be consistent across the engine, the connectors, and the CLI.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the per-request timeout for source and destination APIs
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultRunTimeout bounds a single sync run when no timeout is configured
	DefaultRunTimeout = 30 * time.Minute

	// SecretLookupTimeout bounds a single secret resolution
	SecretLookupTimeout = 10 * time.Second

	// MetricsPushTimeout bounds a push to the metrics gateway
	MetricsPushTimeout = 5 * time.Second
)

// Batch constants define how writes are grouped and paced
const (
	// DefaultChunkSize is the maximum number of write operations per destination call
	DefaultChunkSize = 500

	// DefaultBatchPause is the pause between consecutive chunk submissions
	DefaultBatchPause = 100 * time.Millisecond
)

// Retry constants define the default retry budget for remote calls
const (
	// DefaultMaxAttempts is the total number of attempts, including the first
	DefaultMaxAttempts = 5

	// DefaultRetryBackoff is the fixed wait between attempts
	DefaultRetryBackoff = 1500 * time.Millisecond

	// MaxRetryBackoff caps the wait when exponential backoff is enabled
	MaxRetryBackoff = 30 * time.Second
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items requested per source page
	DefaultPageSize = 100

	// MaxPageSize is the maximum allowed source page size
	MaxPageSize = 1000

	// LarkPageSize is the page size used when reading Lark Base records
	LarkPageSize = 500
)

// Window constants
const (
	// DefaultWindowPad widens a date window on both sides so boundary rows are included
	DefaultWindowPad = 24 * time.Hour
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for sensitive files like tokens (rw-------)
	SecureFilePermissions = 0600
)

// Output constants
const (
	// MaxReportedIdentities caps how many identities a table report prints per list
	MaxReportedIdentities = 20
)
