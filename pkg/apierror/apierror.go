// Package apierror implements a vendor-style error taxonomy: one Error
// type carrying a Type drawn from a fixed set of categories, each mapped
// to an HTTP status and a JSON envelope shape.
package apierror

import (
	"encoding/json"
	"net/http"
)

// Type is one of the vendor-style error categories.
type Type string

const (
	InvalidRequest      Type = "invalid_request_error"
	NotFound            Type = "not_found"
	Authentication      Type = "authentication_error"
	IdempotencyConflict Type = "idempotency_error"
	CardError           Type = "card_error"
	RateLimited         Type = "rate_limit_error"
	ServerError         Type = "server_error"
	Internal            Type = "internal_error"
)

var statusByType = map[Type]int{
	InvalidRequest:      http.StatusBadRequest,
	NotFound:            http.StatusNotFound,
	Authentication:      http.StatusUnauthorized,
	IdempotencyConflict: http.StatusConflict,
	CardError:           http.StatusPaymentRequired,
	RateLimited:         http.StatusTooManyRequests,
	ServerError:         http.StatusInternalServerError,
	Internal:            http.StatusInternalServerError,
}

// Error is the concrete error type every resource/billing/webhook failure
// in paper-tiger returns. The HTTP server uses StatusCode/Envelope to
// produce the `{"error": {...}}` response body.
type Error struct {
	Type    Type
	Message string
	Code    string // optional vendor-style decline/error code, e.g. "card_declined"
	Param   string // optional request parameter the error pertains to

	// Status overrides the Type-derived HTTP status when nonzero. Real
	// vendor APIs don't always keep Type and status in lockstep — a
	// missing resource answers 404 with type "invalid_request_error",
	// not a dedicated "not_found" type.
	Status int
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status this error maps to.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	if code, ok := statusByType[e.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// New builds an Error of the given type.
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// WithParam returns a copy of e with Param set.
func (e *Error) WithParam(param string) *Error {
	cp := *e
	cp.Param = param
	return &cp
}

// WithCode returns a copy of e with Code set.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// Envelope is the `{"error": {...}}` JSON response body shape.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody is the inner object of Envelope.
type EnvelopeBody struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ToEnvelope converts any error to a response envelope, defaulting
// non-apierror errors to Internal.
func ToEnvelope(err error) (int, Envelope) {
	if e, ok := err.(*Error); ok {
		return e.StatusCode(), Envelope{Error: EnvelopeBody{
			Type:    e.Type,
			Message: e.Message,
			Code:    e.Code,
			Param:   e.Param,
		}}
	}
	return http.StatusInternalServerError, Envelope{Error: EnvelopeBody{
		Type:    Internal,
		Message: err.Error(),
	}}
}

// WriteTo writes err as a JSON error envelope with the matching HTTP status.
func WriteTo(w http.ResponseWriter, err error) {
	status, env := ToEnvelope(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// NotFoundErr is a convenience constructor for the common "no such resource
// item" case. It answers 404 but, matching real vendor APIs, carries
// Type InvalidRequest rather than a dedicated not-found type, with the
// missing id quoted in the message.
func NotFoundErr(resource, id string) *Error {
	return &Error{
		Type:    InvalidRequest,
		Message: "No such " + resource + ": '" + id + "'",
		Status:  http.StatusNotFound,
	}
}
