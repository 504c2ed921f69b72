package retry

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/agentstation/rowsync/pkg/errors"
)

// Class is the retry classification of an error.
type Class int

const (
	// Fatal errors are returned immediately.
	Fatal Class = iota
	// Transient errors are retried after the backoff.
	Transient
)

// String implements fmt.Stringer.
func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "fatal"
}

// transientMessages are matched against error text for failures that reach
// us only as strings from lower layers.
var transientMessages = []string{
	"socket hang up",
	"connection reset",
	"econnreset",
	"etimedout",
	"i/o timeout",
	"tls handshake timeout",
	"unexpected eof",
}

// Classify reports whether err is worth retrying. Rate limits (HTTP 429 or
// a provider rate-limit code), connection resets, connection timeouts and
// dropped sockets are transient. Everything else, including context
// cancellation, is fatal.
//
// A client-side request timeout wraps context.DeadlineExceeded but still
// reaches us as a timed out *url.Error, so it classifies transient. Do
// separately stops when the caller's own context is done.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	if stderrors.Is(err, context.Canceled) {
		return Fatal
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) && (urlErr.Timeout() || stderrors.Is(urlErr.Err, io.EOF)) {
		return Transient
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}
	if errors.IsRateLimited(err) || errors.IsTransient(err) {
		return Transient
	}
	if stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, syscall.ETIMEDOUT) ||
		stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return Transient
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	// APIError carries rate limiting by status; anything else it reports
	// is a provider decision we should not repeat.
	var apiErr *errors.APIError
	if stderrors.As(err, &apiErr) {
		return Fatal
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return Transient
		}
	}
	return Fatal
}
