package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies endpoint failures.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
)

// ExternalServiceError is any failure of the conversational endpoint. Message
// carries the endpoint's own text when it sent one.
type ExternalServiceError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("external service error (%s, status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("external service error (%s): %s", e.Kind, msg)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Transient reports whether a retry may succeed.
func (e *ExternalServiceError) Transient() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindQuota:
		return e.StatusCode == http.StatusTooManyRequests
	case KindStatus:
		return e.StatusCode >= 500
	default:
		return false
	}
}

func statusError(code int, msg string) *ExternalServiceError {
	kind := KindStatus
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		kind = KindQuota
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &ExternalServiceError{Kind: kind, StatusCode: code, Message: msg}
}

func classifyTransportError(err error) *ExternalServiceError {
	var ese *ExternalServiceError
	if errors.As(err, &ese) {
		return ese
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ExternalServiceError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ExternalServiceError{Kind: KindNetwork, Message: "request cancelled", Err: err}
	}
	return &ExternalServiceError{Kind: KindNetwork, Message: "API request failed", Err: err}
}
