package instagram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureKind classifies an account-action failure. The classification is
// derived once, here, from the API response; callers never re-derive it
// from error strings.
type FailureKind string

const (
	// FailureTransient covers network hiccups and 5xx responses.
	FailureTransient FailureKind = "transient"
	// FailureRateLimited is Instagram telling us to slow down.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureChallenge is the interactive verification flow; requires
	// operator action in the Instagram app.
	FailureChallenge FailureKind = "challenge_required"
	// FailureAuth is an expired or rejected session.
	FailureAuth FailureKind = "auth"
	// FailureUnknown is anything we could not classify.
	FailureUnknown FailureKind = "unknown"
)

// APIError is a classified failure from the Instagram API.
type APIError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("instagram api error: kind=%s status=%d message=%s",
			e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("instagram api error: kind=%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("instagram api error: kind=%s status=%d", e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify extracts the failure kind from an error returned by the client.
// Unclassified errors are treated as unknown, which downstream policy
// handles conservatively.
func Classify(err error) FailureKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return FailureUnknown
}

// transientNetworkError wraps a transport failure that never reached the API.
func transientNetworkError(err error) *APIError {
	return &APIError{Kind: FailureTransient, Err: err}
}

// classifyStatus maps a non-2xx response to a classified error. Body marker
// matching lives only here; everything above this package consumes the
// FailureKind enum.
func classifyStatus(status int, message string) *APIError {
	kind := FailureUnknown
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusTooManyRequests:
		kind = FailureRateLimited
	case strings.Contains(lower, "please wait a few minutes"):
		kind = FailureRateLimited
	case strings.Contains(lower, "challenge_required"),
		strings.Contains(lower, "checkpoint_required"):
		kind = FailureChallenge
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		strings.Contains(lower, "login_required"):
		kind = FailureAuth
	case status >= http.StatusInternalServerError:
		kind = FailureTransient
	}

	return &APIError{Kind: kind, StatusCode: status, Message: message}
}
