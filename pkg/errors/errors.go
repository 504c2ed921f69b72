// Package errors defines the error vocabulary shared by the rowsync engine,
// its connectors, and the CLI.
//
// Every typed error matches one of the sentinels below through errors.Is, so
// callers classify failures without caring which connector produced them:
// retry.Classify treats ErrTransient and ErrRateLimited as retryable, the
// engine skips ErrMalformedRecord rows, and the CLI reports ErrInvalidInput
// as a usage problem.
package errors

import (
	"errors"
)

// New is errors.New, re-exported so callers need a single import.
var New = errors.New

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAuthentication      = errors.New("authentication failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrTransient           = errors.New("transient failure")
	ErrRetryExhausted      = errors.New("retry attempts exhausted")
	ErrMalformedRecord     = errors.New("malformed record")
	ErrTimeout             = errors.New("operation timed out")

	// ErrNothingApplied is returned for a write call that succeeded at the
	// transport level but reported zero applied rows.
	ErrNothingApplied = errors.New("no writes applied")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsValidationError(err error) bool     { return errors.Is(err, ErrInvalidInput) }
func IsAuthentication(err error) bool      { return errors.Is(err, ErrAuthentication) }
func IsProviderUnavailable(err error) bool { return errors.Is(err, ErrProviderUnavailable) }
func IsRateLimited(err error) bool         { return errors.Is(err, ErrRateLimited) }
func IsTransient(err error) bool           { return errors.Is(err, ErrTransient) }
func IsRetryExhausted(err error) bool      { return errors.Is(err, ErrRetryExhausted) }
func IsMalformedRecord(err error) bool     { return errors.Is(err, ErrMalformedRecord) }
func IsTimeout(err error) bool             { return errors.Is(err, ErrTimeout) }
