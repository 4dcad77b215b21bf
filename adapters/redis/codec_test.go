package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamValueRoundTrip(t *testing.T) {
	original := testPayload{ID: "42", Data: "hello"}

	values, err := EncodeStreamValue(original)
	require.NoError(t, err)
	require.Contains(t, values, "payload")

	decoded, err := DecodeStreamValue[testPayload](values)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestEncodeStreamValueRejectsPointer(t *testing.T) {
	_, err := EncodeStreamValue(&testPayload{ID: "42"})
	assert.ErrorIs(t, err, ErrPointerType)
}

func TestDecodeStreamValue(t *testing.T) {
	t.Run("empty map returns zero value", func(t *testing.T) {
		decoded, err := DecodeStreamValue[testPayload](map[string]any{})
		require.NoError(t, err)
		assert.Zero(t, decoded)
	})

	t.Run("missing payload field", func(t *testing.T) {
		_, err := DecodeStreamValue[testPayload](map[string]any{"other": "x"})
		assert.Error(t, err)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := DecodeStreamValue[testPayload](map[string]any{"payload": "$$$"})
		assert.Error(t, err)
	})

	t.Run("pointer type rejected", func(t *testing.T) {
		_, err := DecodeStreamValue[*testPayload](map[string]any{})
		assert.ErrorIs(t, err, ErrPointerType)
	})
}
