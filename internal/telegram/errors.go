package telegram

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Code        int
	Description string
}

func (e *StatusError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: HTTP %d: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("telegram: HTTP %d", e.Code)
}

// Retryable reports whether repeating the same request may succeed.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Code >= 500:
		return true
	case e.Code == http.StatusTooManyRequests, e.Code == http.StatusRequestTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err is worth retrying. Transport errors
// (timeouts, resets, DNS) are; permanent API rejections are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
