package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidArgumentError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		field          string
		message        string
		expectedString string
	}{
		{
			name:           "with field",
			field:          "biz_params",
			message:        "must not be empty",
			expectedString: "invalid argument biz_params: must not be empty",
		},
		{
			name:           "without field",
			message:        "method required",
			expectedString: "invalid argument: method required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewInvalidArgumentError(tt.field, tt.message)
			assert.Equal(t, tt.expectedString, err.Error())
			assert.True(t, errors.Is(err, ErrInvalidArgument))
			assert.True(t, errors.Is(err, &InvalidArgumentError{}))
			assert.False(t, errors.Is(err, ErrInvalidSign))
		})
	}
}

func TestInvalidSignError(t *testing.T) {
	t.Parallel()

	cause := errors.New("crypto/rsa: verification error")

	err := NewInvalidSignError("private key is empty")
	assert.Equal(t, "invalid sign: private key is empty", err.Error())
	assert.Nil(t, err.Unwrap())
	assert.True(t, errors.Is(err, ErrInvalidSign))

	wrapped := NewInvalidSignErrorWithCause("signature mismatch", cause)
	assert.Equal(t, "invalid sign: signature mismatch: crypto/rsa: verification error", wrapped.Error())
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, errors.Is(wrapped, &InvalidSignError{}))
	assert.False(t, errors.Is(wrapped, ErrBusiness))
}

func TestBusinessError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            *BusinessError
		expectedString string
	}{
		{
			name:           "with sub code",
			err:            NewBusinessError("", "40004", "Business Failed", "ACQ.TRADE_NOT_EXIST", "trade not exist"),
			expectedString: "business error 40004: Business Failed (ACQ.TRADE_NOT_EXIST: trade not exist)",
		},
		{
			name:           "with method",
			err:            NewBusinessError("alipay.trade.query", "20001", "Insufficient Token Permissions", "", ""),
			expectedString: "alipay.trade.query: business error 20001: Insufficient Token Permissions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expectedString, tt.err.Error())
			assert.True(t, errors.Is(tt.err, ErrBusiness))
		})
	}
}

func TestIsBusiness(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("call failed: %w", NewBusinessError("m", "40004", "Business Failed", "sub", "detail"))
	be, ok := IsBusiness(err)
	require.True(t, ok)
	assert.Equal(t, "40004", be.Code)
	assert.Equal(t, "sub", be.SubCode)
	assert.Equal(t, "detail", be.SubMsg)

	_, ok = IsBusiness(errors.New("plain"))
	assert.False(t, ok)
}

func TestNetworkError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewNetworkError("POST", "https://gw/gateway.do", cause)
	assert.Equal(t, "network error during POST https://gw/gateway.do: connection refused", err.Error())
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))

	status := NewNetworkStatusError("POST", "https://gw/gateway.do", 502)
	assert.Equal(t, "network error during POST https://gw/gateway.do: unexpected status 502", status.Error())
	assert.True(t, errors.Is(status, &NetworkError{}))

	bare := &NetworkError{Op: "POST", URL: "u"}
	assert.Equal(t, "network error during POST u", bare.Error())
}

func TestRuntimeError(t *testing.T) {
	t.Parallel()

	err := NewRuntimeError("missing alipay_trade_query_response")
	assert.Equal(t, "runtime error: missing alipay_trade_query_response", err.Error())
	assert.True(t, errors.Is(err, ErrRuntime))

	cause := errors.New("unexpected EOF")
	wrapped := NewRuntimeErrorWithCause("decode response", cause)
	assert.Equal(t, "runtime error: decode response: unexpected EOF", wrapped.Error())
	assert.True(t, errors.Is(wrapped, cause))
}

func TestConfigError(t *testing.T) {
	t.Parallel()

	err := NewConfigError("app_id", "is required")
	assert.Equal(t, "config error at app_id: is required", err.Error())
	assert.True(t, errors.Is(err, ErrConfigInvalid))

	noField := NewConfigError("", "invalid configuration")
	assert.Equal(t, "config error: invalid configuration", noField.Error())

	cause := errors.New("no such file")
	withCause := NewConfigErrorWithCause("app_private_key_file", "cannot read", cause)
	assert.True(t, errors.Is(withCause, cause))
	assert.Equal(t, cause, withCause.Unwrap())
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, WrapError(nil, "context"))

	base := NewRuntimeError("boom")
	wrapped := WrapError(base, "validate")
	assert.Equal(t, "validate: runtime error: boom", wrapped.Error())
	assert.True(t, errors.Is(wrapped, ErrRuntime))
}
