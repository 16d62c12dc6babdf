package util //nolint:revive // shared formatting helpers for operator output

import "time"

// FormatElapsed renders a job's running time for operator output.
// Zero or negative durations render as "-"; longer values are truncated to milliseconds.
func FormatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// JobElapsed is the time between creation and the last history entry.
func JobElapsed(created time.Time, last time.Time) time.Duration {
	if created.IsZero() || last.IsZero() {
		return 0
	}
	return last.Sub(created)
}
