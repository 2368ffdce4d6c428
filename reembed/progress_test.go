package reembed

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Add(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Add(5)
	assert.Empty(t, buf.String(), "below the report interval")

	tracker.Add(20)
	assert.Contains(t, buf.String(), "25/100 chunks (25.0%)")

	tracker.Add(500)
	assert.Contains(t, buf.String(), "100/100 chunks (100.0%)")
	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
}

func TestProgressTracker_FinishReportsActualCount(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 1000)

	tracker.Start()
	tracker.Add(75)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "75/100 chunks (75.0%)")
	assert.Contains(t, output, "\n")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Add(5)
	tracker.Finish()
	assert.Empty(t, buf.String())
	assert.Zero(t, tracker.Elapsed())

	// A nil writer discards output
	quiet := NewProgressTracker(nil, 10, 1)
	quiet.Start()
	quiet.Add(10)
	quiet.Finish()
}
