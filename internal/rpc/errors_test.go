package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "nil error",
			err:       nil,
			retryable: false,
		},
		{
			name:      "network timeout error",
			err:       &mockNetError{msg: "network timeout", timeout: true},
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       syscall.ECONNREFUSED,
			retryable: true,
		},
		{
			name:      "connection reset",
			err:       syscall.ECONNRESET,
			retryable: true,
		},
		{
			name:      "broken pipe",
			err:       syscall.EPIPE,
			retryable: true,
		},
		{
			name:      "timeout string",
			err:       errors.New("operation timeout"),
			retryable: true,
		},
		{
			name:      "context deadline exceeded",
			err:       context.DeadlineExceeded,
			retryable: true,
		},
		{
			name:      "rate limit 429",
			err:       errors.New("HTTP 429"),
			retryable: true,
		},
		{
			name:      "too many requests",
			err:       errors.New("too many requests"),
			retryable: true,
		},
		{
			name:      "502 bad gateway",
			err:       errors.New("502 bad gateway"),
			retryable: true,
		},
		{
			name:      "503 service unavailable",
			err:       errors.New("503 Service Unavailable"),
			retryable: true,
		},
		{
			name:      "connection pool exhausted",
			err:       errors.New("connection pool exhausted"),
			retryable: true,
		},
		{
			name:      "invalid parameter",
			err:       errors.New("invalid parameter"),
			retryable: false,
		},
		{
			name:      "authentication failed",
			err:       errors.New("401 Unauthorized"),
			retryable: false,
		},
		{
			name:      "execution reverted",
			err:       errors.New("execution reverted"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := retryableError(tt.err)
			assert.Equal(t, tt.retryable, result, "retryableError(%v) = %v, want %v", tt.err, result, tt.retryable)
		})
	}
}

func TestRetryableError_WrappedErrors(t *testing.T) {
	// Wrapped errors are still detected through errors.Is/As
	baseErr := syscall.ECONNREFUSED
	wrappedErr := fmt.Errorf("connection failed: %w", baseErr)

	assert.True(t, retryableError(wrappedErr), "should detect wrapped connection refused error")
}

func TestRetryableError_NetworkError(t *testing.T) {
	netErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: syscall.ECONNRESET,
	}

	assert.True(t, retryableError(netErr), "should detect net.OpError as retryable")
}

func TestChainCallError(t *testing.T) {
	inner := errors.New("503 Service Unavailable")
	err := &ChainCallError{Op: "collection_uri", Err: inner}

	require.EqualError(t, err, "chain call collection_uri failed: 503 Service Unavailable")
	require.ErrorIs(t, err, inner)
}

func TestIsRetryable(t *testing.T) {
	retryable := &ChainCallError{Op: "decimals", Err: errors.New("504 Gateway Timeout")}
	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(fmt.Errorf("fetching metadata: %w", retryable)))

	permanent := &ChainCallError{Op: "decimals", Err: errors.New("execution reverted")}
	assert.False(t, IsRetryable(permanent))
	assert.False(t, IsRetryable(errors.New("bad request")))
	assert.False(t, IsRetryable(nil))
}
