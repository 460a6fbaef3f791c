package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error kinds. Every failure returned by Client wraps exactly one of these,
// so callers branch with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrValidationRejected = errors.New("validation rejected")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrServer             = errors.New("server error")
)

type APIError struct {
	Kind    error
	Status  int
	Message string
	// Fields holds per-field messages when the service reports them.
	Fields map[string]string
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString("]")
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// IsAuthFailure reports whether err means the bearer token is no longer
// accepted.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// Retryable reports whether the caller may simply try again later.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrRateLimited)
}

// kindForStatus maps an HTTP status to an error kind. credentialCall marks
// login and register, where 401 rejects the submitted credentials rather
// than an existing session.
func kindForStatus(status int, credentialCall bool) error {
	switch {
	case status == http.StatusUnauthorized && credentialCall:
		return ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return ErrSessionExpired
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusBadRequest,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		return ErrValidationRejected
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrServer
	}
}
