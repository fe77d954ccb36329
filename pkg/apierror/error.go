package apierror

import (
	"encoding/json"
	"net/http"
	"time"

	"cardfolio-api/pkg/uid"
)

// Kind is the error taxonomy shared by the cache layer and the HTTP surface.
type Kind string

const (
	KindNetwork        Kind = "NETWORK"
	KindRemoteStore    Kind = "REMOTE_STORE"
	KindAuthentication Kind = "AUTHENTICATION"
	KindCache          Kind = "CACHE"
	KindValidation     Kind = "VALIDATION"
	KindUnknown        Kind = "UNKNOWN"
)

// Severity drives the log level an error is reported at.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Error represents a structured error, both as returned by the services and
// as rendered to API clients.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`

	ID        string    `json:"id,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	Severity  Severity  `json:"-"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"-"`
	Cause     error     `json:"-"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails adds field-level error details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// ToJSON converts the error to JSON bytes, using the default locale for the
// user-facing message.
func (e *Error) ToJSON() []byte {
	return e.ToLocalizedJSON("")
}

// ToLocalizedJSON converts the error to JSON bytes with a user message
// matched against an Accept-Language value.
func (e *Error) ToLocalizedJSON(acceptLanguage string) []byte {
	body := map[string]interface{}{
		"code":         e.Code,
		"message":      e.Message,
		"kind":         e.kind(),
		"retryable":    e.Retryable,
		"user_message": UserMessage(e.kind(), e.Message, acceptLanguage),
	}
	if e.ID != "" {
		body["id"] = e.ID
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}

	data, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   body,
	})
	return data
}

func (e *Error) kind() Kind {
	if e.Kind == "" {
		return KindUnknown
	}
	return e.Kind
}

func newError(status int, code string, kind Kind, severity Severity, message string) *Error {
	return &Error{
		StatusCode: status,
		Code:       code,
		Message:    message,
		ID:         uid.New(),
		Kind:       kind,
		Severity:   severity,
		Timestamp:  time.Now(),
	}
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, "BAD_REQUEST", KindValidation, SeverityLow, message)
}

// ValidationError creates a 400 error with validation details.
func ValidationError(message string, details ...FieldError) *Error {
	e := newError(http.StatusBadRequest, "VALIDATION_ERROR", KindValidation, SeverityLow, message)
	e.Details = details
	return e
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", KindAuthentication, SeverityHigh, message)
}

// Forbidden creates a 403 Forbidden error.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Access denied"
	}
	return newError(http.StatusForbidden, "FORBIDDEN", KindAuthentication, SeverityHigh, message)
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return newError(http.StatusNotFound, "NOT_FOUND", KindValidation, SeverityLow, message)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, "CONFLICT", KindValidation, SeverityLow, message)
}

// InternalError creates a 500 Internal Server Error.
func InternalError(message string) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", KindUnknown, SeverityMedium, message)
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	e := newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", KindNetwork, SeverityMedium, message)
	e.Retryable = true
	return e
}

// Network creates a transient connectivity error.
func Network(message string, cause error) *Error {
	e := newError(http.StatusServiceUnavailable, "NETWORK_ERROR", KindNetwork, SeverityMedium, message)
	e.Retryable = true
	e.Cause = cause
	return e
}

// RemoteStore creates a backend-reported error. Only unavailable or timeout
// conditions should be marked retryable.
func RemoteStore(message string, retryable bool, cause error) *Error {
	status := http.StatusBadGateway
	if retryable {
		status = http.StatusServiceUnavailable
	}
	e := newError(status, "REMOTE_STORE_ERROR", KindRemoteStore, SeverityHigh, message)
	e.Retryable = retryable
	e.Cause = cause
	return e
}

// Cache creates an internal cache inconsistency error.
func Cache(message string, cause error) *Error {
	e := newError(http.StatusInternalServerError, "CACHE_ERROR", KindCache, SeverityLow, message)
	e.Retryable = true
	e.Cause = cause
	return e
}

// NotSignedIn is returned by mutations issued without a current session.
func NotSignedIn() *Error {
	return Unauthorized("user is not signed in")
}
