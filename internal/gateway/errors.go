package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy. The gateway retries ErrRateLimited with capped
// exponential backoff, retries ErrProviderTimeout once, and surfaces
// ErrAuth immediately with no retry.
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrAuth            = errors.New("authentication failed")
	ErrProviderTimeout = errors.New("provider timeout")
	ErrNoAPIKey        = errors.New("API key not configured")
)

// APIError carries the provider HTTP failure details.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// classifyStatus maps a non-200 provider response to the taxonomy.
// 5xx responses are treated as transient and folded into the
// rate-limited retry path; auth failures are fatal.
func classifyStatus(provider string, status int, body string) error {
	apiErr := &APIError{Provider: provider, StatusCode: status, Message: truncate(body, 512)}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, apiErr)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrProviderTimeout, apiErr)
	case status >= 500:
		// Overloaded/internal errors are transient; retry like 429.
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr)
	default:
		return apiErr
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}
