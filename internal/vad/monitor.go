package vad

import (
	"context"
	"time"
)

// SampleSource returns the current amplitude window for a stream. A nil
// window means nothing to analyze this tick.
type SampleSource func() []float64

// Monitor drives the detector on a fixed-rate sampling loop until ctx is
// cancelled, then closes it. Each monitored stream gets its own goroutine;
// there is no cross-stream synchronization.
func Monitor(ctx context.Context, d *Detector, interval time.Duration, source SampleSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer d.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if samples := source(); samples != nil {
				d.Process(samples)
			}
		}
	}
}
