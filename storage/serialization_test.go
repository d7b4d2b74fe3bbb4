package storage

import (
	"testing"

	"github.com/poiesic/docingest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalJob(t *testing.T) {
	job := &core.Job{
		ID:     core.ID(18446744073709551615),
		URL:    "https://example.com/reports/ünïcode.pdf",
		Code:   "600519",
		Status: core.StatusFailed,
		Error:  "max retries: status 404",
	}

	data := MarshalJob(job)
	require.Len(t, data, JobMUS.Size(*job))

	decoded, err := UnmarshalJob(data)
	require.NoError(t, err)
	assert.Equal(t, job, decoded)

	skipped, err := JobMUS.Skip(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), skipped)
}

func TestUnmarshalJob_Invalid(t *testing.T) {
	t.Run("empty data", func(t *testing.T) {
		_, err := UnmarshalJob([]byte{})
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("truncated", func(t *testing.T) {
		data := MarshalJob(&core.Job{ID: 7, URL: "https://example.com/a.pdf", Status: core.StatusPending})
		_, err := UnmarshalJob(data[:len(data)-3])
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("unknown status", func(t *testing.T) {
		data := MarshalJob(&core.Job{ID: 7, URL: "https://example.com/a.pdf", Status: "DONE"})
		_, err := UnmarshalJob(data)
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})
}

func TestMarshalUnmarshalCount(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 50000} {
		got, err := UnmarshalCount(MarshalCount(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}
