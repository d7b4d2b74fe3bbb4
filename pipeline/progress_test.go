package pipeline

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestProgress_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgress(newBufferLogger(&buf), 100, 0, 10)

	tracker.Start()
	assert.True(t, tracker.started, "should be started")

	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0), "elapsed time should be positive")
	assert.Equal(t, 100, tracker.Current())

	output := buf.String()
	assert.Contains(t, output, "done=100")
	assert.Contains(t, output, "total=100")
}

func TestProgress_ResumesFromResolvedJobs(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgress(newBufferLogger(&buf), 100, 60, 10)

	tracker.Start()
	tracker.Increment(5)
	assert.Equal(t, 65, tracker.Current())
	assert.Empty(t, buf.String(), "below the report interval")

	tracker.Increment(5)
	assert.Contains(t, buf.String(), "done=70")
}

func TestProgress_IncrementBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgress(newBufferLogger(&buf), 100, 0, 10)

	tracker.Start()
	tracker.Increment(150)

	assert.Equal(t, 100, tracker.Current(), "should cap at total")
}

func TestProgress_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgress(newBufferLogger(&buf), 100, 0, 10)

	tracker.Increment(50)
	tracker.Finish()

	assert.Empty(t, buf.String(), "should not output before start")
	assert.Equal(t, time.Duration(0), tracker.Elapsed())
}

func TestProgress_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgress(newBufferLogger(&buf), 0, 0, 10)

	tracker.Start()
	tracker.Finish()

	assert.True(t, strings.Contains(buf.String(), "run finished"))
	assert.Contains(t, buf.String(), "total=0")
}
