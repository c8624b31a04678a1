package github

import "fmt"

// RequestError describes a failed GraphQL HTTP request. Non-retryable
// failures surface it directly; for transient ones it is wrapped in the
// retry.ErrExhausted error once the budget runs out. RateLimited marks the
// rate-limit variant, which only matters for logging.
type RequestError struct {
	StatusCode  int
	Message     string
	RateLimited bool
}

func (e *RequestError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("github: rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github: request failed (status %d): %s", e.StatusCode, e.Message)
}
