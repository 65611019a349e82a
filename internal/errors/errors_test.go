package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "plain error",
			err:      New(CodeEmptyResponse, "no data returned"),
			expected: "no data returned",
		},
		{
			name:     "formatted error",
			err:      Newf(CodeUnsupportedFrequency, "frequency %q not supported by %s", "tick", "glassnode"),
			expected: `frequency "tick" not supported by glassnode`,
		},
		{
			name:     "wrapped error",
			err:      Wrap(stderrors.New("eof"), CodeBadResponse, "decode response"),
			expected: "decode response: eof",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestIsCode(t *testing.T) {
	err := Newf(CodeUnsupportedCategory, "category %q not supported", "macro")
	wrapped := fmt.Errorf("convert params: %w", err)

	assert.True(t, IsCode(wrapped, CodeUnsupportedCategory))
	assert.False(t, IsCode(wrapped, CodeEmptyResponse))
	assert.False(t, IsCode(stderrors.New("plain"), CodeEmptyResponse))
	assert.Equal(t, CodeUnsupportedCategory, CodeOf(wrapped))
	assert.Equal(t, Code(""), CodeOf(stderrors.New("plain")))
}

func TestValidation(t *testing.T) {
	err := Validation("tickers", "must not be empty")

	assert.Equal(t, CodeInvalidRequest, err.Code)
	assert.Contains(t, err.Error(), "tickers")

	ve, ok := err.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "tickers", ve.Field)
}

func TestWithDetails(t *testing.T) {
	base := New(CodeUnmappedFields, "some fields could not be mapped")
	detailed := base.WithDetails([]string{"add_act", "tx_count"})

	assert.Nil(t, base.Details, "original error must not be mutated")
	assert.Equal(t, []string{"add_act", "tx_count"}, detailed.Details)

	// unwrap chain is preserved
	wrapped := fmt.Errorf("wrangle: %w", detailed)
	assert.True(t, IsCode(wrapped, CodeUnmappedFields))
}
