// Package completion drives the two-phase chat-completion protocol.
// This file contains the error taxonomy shared by the client and providers.

package completion

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed completion attempt.
type ErrorKind string

const (
	// KindNetwork is a transport-level failure: the request never produced
	// an HTTP response.
	KindNetwork ErrorKind = "network_error"
	// KindMissingAPIKey means no provider credential is configured. Fatal to
	// any send attempt.
	KindMissingAPIKey ErrorKind = "missing_api_key"
	// KindUnauthorized maps HTTP 401/403.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindRateLimited maps HTTP 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindServiceUnavailable maps HTTP 503.
	KindServiceUnavailable ErrorKind = "service_unavailable"
	// KindServerError maps the remaining 5xx statuses.
	KindServerError ErrorKind = "server_error"
	// KindGenericHTTP is any other non-success HTTP status.
	KindGenericHTTP ErrorKind = "generic_http_error"
	// KindEmptyResponse is a success status with missing or blank content.
	KindEmptyResponse ErrorKind = "empty_response"
	// KindInvalidToolArguments means the model requested a tool with a
	// payload we could not decode.
	KindInvalidToolArguments ErrorKind = "invalid_tool_arguments"
	// KindMalformedToolCall is the specific 400 condition where the model
	// failed to generate a well-formed tool call. The client retries this
	// once without tools.
	KindMalformedToolCall ErrorKind = "malformed_tool_call"
)

// Error wraps a completion failure with its taxonomy kind, the HTTP status
// when one was received, and the provider's message when available.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with a kind and human-readable message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapNetworkError wraps a transport failure.
func WrapNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err, Message: "network request failed"}
}

// NewHTTPError maps a non-success HTTP status to its taxonomy kind, keeping
// the provider message when one was included in the error body.
func NewHTTPError(status int, message string) *Error {
	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindUnauthorized
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusServiceUnavailable:
		kind = KindServiceUnavailable
	case status >= 500:
		kind = KindServerError
	default:
		kind = KindGenericHTTP
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// IsMalformedToolCallBody reports whether a 400 error body indicates the
// model produced a malformed tool-call generation. Providers surface this
// condition so the client can retry once without tools.
func IsMalformedToolCallBody(message string) bool {
	return strings.Contains(strings.ToLower(message), "failed to call a function")
}

// IsKind reports whether err is a completion Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}
