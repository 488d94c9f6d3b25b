// Package apierr builds and classifies the OpenAI error envelope
// (spec.md §4.8, §7). Every failure path in the gateway funnels through
// [New] or [Wrap] so the envelope's fields are always present, per the
// single-constructor design note in spec.md §9.
package apierr

import (
	"net/http"

	"github.com/Laisky/errors/v2"
)

// Type is the OpenAI error.type taxonomy.
type Type string

const (
	TypeInvalidRequest  Type = "invalid_request_error"
	TypeAuthentication  Type = "authentication_error"
	TypePermission      Type = "permission_error"
	TypeNotFound        Type = "not_found_error"
	TypeRateLimit       Type = "rate_limit_error"
	TypeServer          Type = "server_error"
)

// Machine-readable codes used in a handful of well-known situations.
const (
	CodeModelNotFound        = "model_not_found"
	CodeUnsupportedParameter = "unsupported_parameter"
	CodeInvalidLanguage      = "invalid_language_format"
	CodeEmptyArray           = "empty_array"
)

// Error is the `error` object inside the OpenAI envelope.
type Error struct {
	Message string  `json:"message"`
	Type    Type    `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// Envelope is the full OpenAI-shaped error response body.
type Envelope struct {
	Error Error `json:"error"`
}

// WithStatus pairs the envelope with the HTTP status code it must be sent
// with, and carries the log level the caller should use.
type WithStatus struct {
	StatusCode int
	Envelope   Envelope
	LogLevel   string // "warning" | "error" | "critical"
	cause      error
}

func (e *WithStatus) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.Envelope.Error.Message
}

func (e *WithStatus) Unwrap() error { return e.cause }

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// New constructs an error envelope. param/code may be empty, in which case
// the corresponding JSON field is serialized as null.
func New(status int, typ Type, code, param, message string) *WithStatus {
	level := "warning"
	if status >= 500 {
		level = "error"
	}
	return &WithStatus{
		StatusCode: status,
		LogLevel:   level,
		Envelope: Envelope{Error: Error{
			Message: message,
			Type:    typ,
			Param:   strPtr(param),
			Code:    strPtr(code),
		}},
		cause: errors.New(message),
	}
}

// Wrap attaches context to an underlying error while keeping its stack trace
// (via Laisky/errors) and turns it into a 500 server_error.
func Wrap(err error, message string) *WithStatus {
	wrapped := errors.Wrap(err, message)
	return &WithStatus{
		StatusCode: http.StatusInternalServerError,
		LogLevel:   "error",
		Envelope: Envelope{Error: Error{
			Message: wrapped.Error(),
			Type:    TypeServer,
		}},
		cause: wrapped,
	}
}

// InvalidRequest is the common 400 invalid_request_error with no machine code.
func InvalidRequest(message string) *WithStatus {
	return New(http.StatusBadRequest, TypeInvalidRequest, "", "", message)
}

// InvalidRequestWithCode is a 400 invalid_request_error carrying a machine code.
func InvalidRequestWithCode(code, message string) *WithStatus {
	return New(http.StatusBadRequest, TypeInvalidRequest, code, "", message)
}

// ModelNotFound is the 404 invalid_request_error/model_not_found pair
// spec.md §4.3 and §8 both call out explicitly.
func ModelNotFound(modelID string) *WithStatus {
	return New(http.StatusNotFound, TypeInvalidRequest, CodeModelNotFound, "model",
		"The model `"+modelID+"` does not exist or you do not have access to it.")
}

// UnsupportedParameter is the 400 invalid_request_error/unsupported_parameter pair.
func UnsupportedParameter(param, message string) *WithStatus {
	return New(http.StatusBadRequest, TypeInvalidRequest, CodeUnsupportedParameter, param, message)
}

// ProviderSource is the half of the mapping table in spec.md §4.8 that
// depends on the *category* of provider failure rather than its code.
type ProviderSource int

const (
	ProviderThrottle ProviderSource = iota
	ProviderAccessDenied
	ProviderAuth
	ProviderNotFound
	ProviderValidation
	ProviderUnavailable
)

// FromProvider maps a classified provider failure into the OpenAI envelope
// per the single table in spec.md §4.8. providerCode is echoed verbatim as
// the machine code; sanitization of 401/403 messages happens at the HTTP
// boundary (internal/httpapi), not here, so the original message survives
// for logging.
func FromProvider(src ProviderSource, providerCode, message string) *WithStatus {
	switch src {
	case ProviderThrottle:
		return New(http.StatusTooManyRequests, TypeRateLimit, providerCode, "", message)
	case ProviderAccessDenied:
		return New(http.StatusForbidden, TypePermission, providerCode, "", message)
	case ProviderAuth:
		return New(http.StatusUnauthorized, TypeAuthentication, providerCode, "", message)
	case ProviderNotFound:
		return New(http.StatusNotFound, TypeNotFound, providerCode, "", message)
	case ProviderValidation:
		return New(http.StatusBadRequest, TypeInvalidRequest, providerCode, "", message)
	default:
		return New(http.StatusServiceUnavailable, TypeServer, providerCode, "", message)
	}
}

// Sanitized returns the user-visible message for 401/403 responses, which
// spec.md §7 requires to always be generic regardless of the underlying cause.
func (e *WithStatus) Sanitized() Envelope {
	env := e.Envelope
	switch e.StatusCode {
	case http.StatusUnauthorized:
		env.Error.Message = "Unauthorized"
	case http.StatusForbidden:
		env.Error.Message = "Forbidden"
	}
	return env
}
