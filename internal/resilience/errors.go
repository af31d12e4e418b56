// Package resilience provides the retry policy and error taxonomy for
// external service calls: transient transport failures, server busy hints,
// and the authoritative quota-exhausted signal.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (e.g., 5xx, network
// timeout). RetryAfter carries a server-supplied wait hint when the response
// included one ("service busy"); zero means no hint.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// NewBusyError wraps a "service busy" error carrying the server's wait hint.
func NewBusyError(err error, retryAfter time.Duration) *TransientError {
	return &TransientError{Err: err, StatusCode: 503, RetryAfter: retryAfter}
}

// QuotaExhaustedError is the authoritative "allowance exhausted" signal from
// the source. It is never retried: the receiving run must halt itself and
// every sibling run sharing the quota pool. Remaining is the authoritative
// remaining allowance (usually 0); ResetAt is the server-announced reset time
// when known, zero otherwise.
type QuotaExhaustedError struct {
	Remaining int64
	ResetAt   time.Time
}

func (e *QuotaExhaustedError) Error() string {
	return "consumption allowance exhausted"
}

// IsQuotaExhausted reports whether the error chain contains the
// authoritative exhaustion signal.
func IsQuotaExhausted(err error) bool {
	var qe *QuotaExhaustedError
	return errors.As(err, &qe)
}

// AsQuotaExhausted extracts the exhaustion signal from the chain, or nil.
func AsQuotaExhausted(err error) *QuotaExhaustedError {
	var qe *QuotaExhaustedError
	if errors.As(err, &qe) {
		return qe
	}
	return nil
}

// RetryAfterHint returns the server wait hint buried in the error chain,
// or zero.
func RetryAfterHint(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network failure
// patterns. Quota exhaustion is authoritative and never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsQuotaExhausted(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry. 429 is deliberately
// absent: rate responses are mapped to QuotaExhaustedError at the transport
// edge and handled by the governor, not by retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
