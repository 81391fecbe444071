// Package progress converts raw byte counters into smoothed throughput
// and ETA figures using a rolling window of observations.
package progress

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const defaultWindow = 10

// Sample is an immutable snapshot derived from the tracker state.
type Sample struct {
	Speed    float64 // instantaneous, bytes/sec
	AvgSpeed float64 // rolling-window average, bytes/sec
	ETA      time.Duration
	Elapsed  time.Duration
}

type observation struct {
	at    time.Time
	bytes int64
}

// Tracker holds a bounded history of (timestamp, cumulative bytes)
// observations. It is not safe for concurrent use; each task owns one.
type Tracker struct {
	window  int
	total   int64
	start   time.Time
	samples []observation
	now     func() time.Time
}

func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = defaultWindow
	}
	return &Tracker{window: window, now: time.Now}
}

// Start fixes the byte total and resets the window.
func (t *Tracker) Start(totalBytes int64) {
	t.total = totalBytes
	t.start = t.now()
	t.samples = t.samples[:0]
}

// Update records the cumulative extracted byte count and returns the
// derived sample. Zero time deltas and a zero average are guarded; an
// ETA of 0 means unknown, not instant.
func (t *Tracker) Update(extractedBytes int64) Sample {
	now := t.now()
	t.samples = append(t.samples, observation{at: now, bytes: extractedBytes})
	if len(t.samples) > t.window {
		t.samples = t.samples[len(t.samples)-t.window:]
	}

	var sample Sample
	if !t.start.IsZero() {
		sample.Elapsed = now.Sub(t.start)
	}

	n := len(t.samples)
	if n >= 2 {
		prev, last := t.samples[n-2], t.samples[n-1]
		if dt := last.at.Sub(prev.at).Seconds(); dt > 0 {
			sample.Speed = float64(last.bytes-prev.bytes) / dt
		}
		first := t.samples[0]
		if dt := t.samples[n-1].at.Sub(first.at).Seconds(); dt > 0 {
			sample.AvgSpeed = float64(t.samples[n-1].bytes-first.bytes) / dt
		}
	}

	if remaining := t.total - extractedBytes; remaining > 0 && sample.AvgSpeed > 0 {
		sample.ETA = time.Duration(float64(remaining) / sample.AvgSpeed * float64(time.Second))
	}
	return sample
}

// Reset drops all state.
func (t *Tracker) Reset() {
	t.total = 0
	t.start = time.Time{}
	t.samples = t.samples[:0]
}

// FormatSpeed renders a byte rate for display.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

// FormatETA renders a duration as 2h 3m / 4m 5s / 6s. Zero means the
// rate is unknown.
func FormatETA(eta time.Duration) string {
	if eta <= 0 {
		return "unknown"
	}
	secs := int64(eta.Seconds())
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
