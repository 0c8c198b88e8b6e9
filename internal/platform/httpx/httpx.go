package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusError is a non-2xx answer from an upstream service.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// NewStatusError captures resp's status, a bounded body snippet and any
// Retry-After hint.
func NewStatusError(resp *http.Response, body []byte) *StatusError {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 300 {
		snippet = snippet[:300]
	}
	return &StatusError{
		Code:       resp.StatusCode,
		Body:       snippet,
		RetryAfter: RetryAfterDuration(resp, 0, 0),
	}
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// RateLimited reports whether err carries a 429 and, if so, how long the
// upstream asked us to wait (0 when it gave no hint).
func RateLimited(err error) (time.Duration, bool) {
	var sc HTTPStatusCoder
	if !errors.As(err, &sc) || sc.HTTPStatusCode() != http.StatusTooManyRequests {
		return 0, false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter, true
	}
	return 0, true
}

func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			} else if at, err := http.ParseTime(ra); err == nil {
				if d := time.Until(at); d > 0 {
					sleepFor = d
				}
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}
