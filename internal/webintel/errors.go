package webintel

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error class carried to API callers.
type Code string

// Error codes surfaced in API responses.
const (
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeAllProvidersFailed Code = "FETCH_ALL_PROVIDERS_FAILED"
	CodeMonitorNotFound    Code = "MONITOR_NOT_FOUND"
	CodeWebhookInvalid     Code = "WEBHOOK_INVALID"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is a typed error carrying a stable code. Two Errors match under
// errors.Is when their codes are equal, so wrapped re-raises stay catchable.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports code equality so sentinels survive wrapping.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinel errors callers can match with errors.Is.
var (
	ErrInsufficientFunds  = &Error{Code: CodeInsufficientFunds, Message: "balance is lower than the requested spend"}
	ErrMonitorNotFound    = &Error{Code: CodeMonitorNotFound, Message: "monitor does not exist"}
	ErrWebhookInvalid     = &Error{Code: CodeWebhookInvalid, Message: "webhook url is not a valid http(s) endpoint"}
	ErrServiceUnavailable = &Error{Code: CodeServiceUnavailable, Message: "dependent store is unreachable"}
)

// CodeOf extracts the error code, defaulting to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	var failed *AllProvidersFailedError
	if errors.As(err, &failed) {
		return CodeAllProvidersFailed
	}
	return CodeInternal
}

// ProviderFailure is one provider's reason within an exhausted fallback.
type ProviderFailure struct {
	ProviderID string `json:"provider_id"`
	Reason     string `json:"reason"`
}

// AllProvidersFailedError aggregates every attempted provider's failure
// so callers keep full fallback diagnostics.
type AllProvidersFailedError struct {
	Attempts int
	Failures []ProviderFailure
}

func (e *AllProvidersFailedError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.ProviderID, f.Reason))
	}
	return fmt.Sprintf("all %d fetch providers failed: %s", e.Attempts, strings.Join(reasons, "; "))
}
