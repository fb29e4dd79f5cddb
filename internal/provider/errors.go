package provider

import (
	"fmt"
	"time"
)

// AuthError means the credential is bad or expired. Job-fatal.
type AuthError struct {
	Provider string
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d)", e.Provider, e.Status)
}

// RateLimitError means the upstream throttled the call. Retryable per-call;
// automatic retry with backoff is intentionally not implemented yet.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

func (e *RateLimitError) Temporary() bool { return true }

// UnavailableError covers transport failures and upstream 5xx responses.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: provider unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// NotFoundError means the upstream object vanished. Per-item-fatal only.
type NotFoundError struct {
	Provider       string
	ConversationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: conversation %s not found upstream", e.Provider, e.ConversationID)
}

// classifyStatus maps a non-2xx HTTP status onto the error taxonomy.
// conversationID may be empty outside fetch calls.
func classifyStatus(name string, status int, conversationID string, retryAfter time.Duration) error {
	switch {
	case status == 401 || status == 403:
		return &AuthError{Provider: name, Status: status}
	case status == 429:
		return &RateLimitError{Provider: name, RetryAfter: retryAfter}
	case status == 404 && conversationID != "":
		return &NotFoundError{Provider: name, ConversationID: conversationID}
	default:
		return &UnavailableError{Provider: name, Err: fmt.Errorf("status %d", status)}
	}
}
