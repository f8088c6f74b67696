package rpc

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ChainCallError wraps a failed or timed-out read-only chain call. Callers
// must not substitute defaults for the value they failed to fetch.
type ChainCallError struct {
	Op  string
	Err error
}

func (e *ChainCallError) Error() string {
	return fmt.Sprintf("chain call %s failed: %v", e.Op, e.Err)
}

func (e *ChainCallError) Unwrap() error { return e.Err }

// retryableError checks if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Connection errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Timeout errors
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	// Rate limiting
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	// Temporary server errors
	if strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	// Connection pool exhausted
	if strings.Contains(errStr, "connection pool") ||
		strings.Contains(errStr, "no available connection") {
		return true
	}

	return false
}

// IsRetryable reports whether the given error (including a wrapped
// ChainCallError) is worth another attempt.
func IsRetryable(err error) bool {
	var callErr *ChainCallError
	if errors.As(err, &callErr) {
		return retryableError(callErr.Err)
	}
	return retryableError(err)
}
