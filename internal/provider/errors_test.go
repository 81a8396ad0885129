package provider

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "rate limited provider error",
			err:  NewProviderError("gemini", KindRateLimited, 30*time.Second, errors.New("429")),
			want: KindRateLimited,
		},
		{
			name: "terminal provider error",
			err:  NewProviderError("gemini", KindTerminal, 0, errors.New("401")),
			want: KindTerminal,
		},
		{
			name: "wrapped provider error",
			err:  fmt.Errorf("embed failed: %w", NewProviderError("gemini", KindTerminal, 0, errors.New("400"))),
			want: KindTerminal,
		},
		{
			name: "plain error defaults to transient",
			err:  errors.New("connection reset"),
			want: KindTransient,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestRetryAfterHint(t *testing.T) {
	withHint := NewProviderError("gemini", KindRateLimited, 45*time.Second, errors.New("429"))
	assert.Equal(t, 45*time.Second, RetryAfterHint(withHint))
	assert.Zero(t, RetryAfterHint(errors.New("plain")))
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewProviderError("gemini", KindTransient, 0, cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "gemini")
	assert.Contains(t, err.Error(), "transient")
}
