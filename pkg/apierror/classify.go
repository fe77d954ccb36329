package apierror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"cardfolio-api/pkg/uid"
)

// Classify maps any error onto the taxonomy. Errors that already are *Error
// are returned unchanged; anything else is wrapped.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Network("request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		e := Network("request canceled", err)
		e.Retryable = false
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network("network error", err)
	}

	kind := detectKind(err.Error())
	e := &Error{
		Code:      string(kind),
		Message:   err.Error(),
		ID:        uid.New(),
		Kind:      kind,
		Severity:  severityFor(kind),
		Retryable: retryableFor(kind, err.Error()),
		Timestamp: time.Now(),
		Cause:     err,
	}
	e.StatusCode = statusFor(kind, e.Retryable)
	return e
}

// detectKind falls back to message inspection for errors raised by drivers
// and clients that carry no type information.
func detectKind(message string) Kind {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, "unauthenticated", "not signed in", "token", "permission denied", "user not found"):
		return KindAuthentication
	case containsAny(msg, "timeout", "connection", "network", "no such host", "broken pipe"):
		return KindNetwork
	case containsAny(msg, "sql", "mongo", "redis", "store", "unavailable"):
		return KindRemoteStore
	case strings.Contains(msg, "cache"):
		return KindCache
	default:
		return KindUnknown
	}
}

func severityFor(kind Kind) Severity {
	switch kind {
	case KindAuthentication, KindRemoteStore:
		return SeverityHigh
	case KindCache, KindValidation:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func retryableFor(kind Kind, message string) bool {
	switch kind {
	case KindNetwork, KindCache:
		return true
	case KindRemoteStore:
		msg := strings.ToLower(message)
		return strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable")
	default:
		return false
	}
}

func statusFor(kind Kind, retryable bool) int {
	switch kind {
	case KindNetwork:
		return http.StatusServiceUnavailable
	case KindRemoteStore:
		if retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// RecoveryOptions controls Recover.
type RecoveryOptions struct {
	CanRetry bool
	Fallback func() error
}

// Recover reports whether the caller may proceed after err: the error must be
// retryable and the caller willing to retry. A fallback, when given, must
// succeed.
func Recover(err *Error, opts RecoveryOptions) bool {
	if err == nil || !err.Retryable || !opts.CanRetry {
		return false
	}
	if opts.Fallback != nil {
		return opts.Fallback() == nil
	}
	return true
}
