package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr error
	}{
		{name: "https url", src: Source{URL: "https://example.com/a.pdf", Code: "500325"}},
		{name: "http url without code", src: Source{URL: "http://example.com/a.pdf"}},
		{name: "empty url", src: Source{URL: "  "}, wantErr: ErrEmptyURL},
		{name: "ftp url", src: Source{URL: "ftp://example.com/a.pdf"}, wantErr: ErrUnsupportedScheme},
		{name: "relative path", src: Source{URL: "/tmp/a.pdf"}, wantErr: ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSource(tt.src)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSource)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateTransition(t *testing.T) {
	for _, s := range []JobStatus{StatusPending, StatusCompleted, StatusFailed, StatusSkippedEmpty} {
		assert.NoError(t, ValidateTransition(Transition{ID: 1, Status: s}))
	}

	err := ValidateTransition(Transition{ID: 1, Status: StatusProcessing})
	assert.ErrorIs(t, err, ErrInvalidTransitionTarget)

	err = ValidateTransition(Transition{ID: 1, Status: "BOGUS"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "", Truncate("hello", 0))
	// multi-byte runes are never split
	assert.Equal(t, "héé", Truncate("héééé", 3))
	assert.Equal(t, "日本", Truncate("日本語", 2))
}
