package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "-", FormatElapsed(0))
	assert.Equal(t, "-", FormatElapsed(-time.Second))
	assert.Equal(t, "500ns", FormatElapsed(500*time.Nanosecond))
	assert.Equal(t, "1.234s", FormatElapsed(1234567*time.Microsecond))
}

func TestJobElapsed(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 90*time.Second, JobElapsed(created, created.Add(90*time.Second)))
	assert.Zero(t, JobElapsed(time.Time{}, created))
}
