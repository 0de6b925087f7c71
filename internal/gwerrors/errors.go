// Package gwerrors implements the canonical error kinds shared by every
// stage of the request pipeline and maps them to OpenAI-shaped error
// bodies, the way the upstream system's OpenAIProxyError hierarchy maps
// exception subclasses to (http_status, type, code) triples.
package gwerrors

import (
	"fmt"
	"net/http"
)

// Kind is the closed set of canonical error kinds the gateway can raise.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request_error"
	KindAuthentication     Kind = "authentication_error"
	KindPermission         Kind = "permission_error"
	KindNotFound           Kind = "not_found_error"
	KindRateLimit          Kind = "rate_limit_error"
	KindUpstreamThrottled  Kind = "upstream_throttled"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamServer     Kind = "upstream_server"
	KindInternal           Kind = "internal"
)

type mapping struct {
	status int
	typ    string
	code   string
}

var table = map[Kind]mapping{
	KindInvalidRequest:      {http.StatusBadRequest, "invalid_request_error", "invalid_request"},
	KindAuthentication:      {http.StatusUnauthorized, "authentication_error", "invalid_api_key"},
	KindPermission:          {http.StatusForbidden, "permission_error", "permission_denied"},
	KindNotFound:            {http.StatusNotFound, "not_found_error", "model_not_found"},
	KindRateLimit:           {http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded"},
	KindUpstreamThrottled:   {http.StatusTooManyRequests, "rate_limit_error", "upstream_throttled"},
	KindUpstreamUnavailable: {http.StatusServiceUnavailable, "service_unavailable", "upstream_unavailable"},
	KindUpstreamServer:      {http.StatusBadGateway, "server_error", "upstream_error"},
	KindInternal:            {http.StatusInternalServerError, "server_error", "internal_error"},
}

// Error is the typed error every pipeline stage raises on failure.
type Error struct {
	Kind    Kind
	Message string
	Param   string
	// Log is the underlying cause, never serialized to the client.
	Log error
}

func (e *Error) Error() string {
	if e.Log != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Log)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Log }

// Status returns the HTTP status code for this error's kind.
func (e *Error) Status() int {
	if m, ok := table[e.Kind]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// Body builds the OpenAI-shaped {"error": {...}} response body.
func (e *Error) Body() map[string]any {
	m, ok := table[e.Kind]
	if !ok {
		m = table[KindInternal]
	}
	body := map[string]any{
		"message": e.Message,
		"type":    m.typ,
		"code":    m.code,
	}
	if e.Param != "" {
		body["param"] = e.Param
	} else {
		body["param"] = nil
	}
	return map[string]any{"error": body}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Log: cause}
}

func WithParam(kind Kind, message, param string) *Error {
	return &Error{Kind: kind, Message: message, Param: param}
}

func InvalidRequest(message string) *Error   { return New(KindInvalidRequest, message) }
func Authentication(message string) *Error   { return New(KindAuthentication, message) }
func Permission(message string) *Error       { return New(KindPermission, message) }
func NotFound(message string) *Error         { return New(KindNotFound, message) }
func RateLimit(message string) *Error        { return New(KindRateLimit, message) }
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}
