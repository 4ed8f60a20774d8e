// Package vad derives a boolean speaking signal from raw audio amplitude
// samples. The threshold adapts to ambient noise instead of using a fixed
// cutoff, so a quiet room and a noisy street both produce usable edges. The
// output is advisory UI state, not a correctness-critical signal.
package vad

import (
	"math"
	"sync"
)

const (
	// Amplitude samples are expected in the normalized 0..255 range.
	sampleMax = 255

	// Multiplicative decay applied to the envelope maximum on every tick
	// it is not exceeded.
	envelopeDecay = 0.999

	// The envelope never reports a range narrower than this, which keeps
	// level normalization away from division instability.
	minEnvelopeRange = 20

	// Energy history window used for the adaptive threshold.
	historySize = 64

	// Speaking threshold is the larger of this floor and
	// thresholdGain times the history's running average.
	thresholdFloor = 5
	thresholdGain  = 1.5
)

// Detector tracks voice activity on a single audio stream. One detector per
// monitored stream, local or remote; it is not shared.
//
// The caller drives it with one Process call per sampling tick. The
// OnSpeakingChanged callback fires only on boolean transitions, never on a
// tick where the flag is unchanged.
type Detector struct {
	mu sync.Mutex

	history []float64
	envMax  float64
	envMin  float64

	speaking bool
	muted    bool
	closed   bool

	onChange func(speaking bool)
}

// New creates a detector. onChange may be nil when only polled state is
// wanted.
func New(onChange func(speaking bool)) *Detector {
	return &Detector{
		history:  make([]float64, 0, historySize),
		envMin:   sampleMax,
		onChange: onChange,
	}
}

// Process consumes one window of amplitude samples and returns the current
// speaking flag. A muted detector always reports false, regardless of the
// measured energy.
func (d *Detector) Process(samples []float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	energy := rms(samples)
	d.updateEnvelope(energy)

	// The threshold describes the ambient level before this tick; the
	// current energy joins the history afterwards.
	threshold := d.threshold()
	d.pushHistory(energy)

	speaking := !d.muted && energy >= threshold
	d.setSpeakingLocked(speaking)
	return d.speaking
}

// Speaking returns the current flag without consuming a tick.
func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// Level reports the last energy normalized against the adaptive envelope,
// in [0, 1]. Useful for volume meters.
func (d *Detector) Level(energy float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	level := (energy - d.envMin) / d.envelopeRange()
	return math.Min(1, math.Max(0, level))
}

// SetMuted forces the speaking flag to false while muted. The transition
// edge, if any, fires immediately rather than on the next tick.
func (d *Detector) SetMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.muted = muted
	if muted {
		d.setSpeakingLocked(false)
	}
}

// Reset drops the adaptive state. Safe to call at any time, any number of
// times.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = d.history[:0]
	d.envMax = 0
	d.envMin = sampleMax
	d.setSpeakingLocked(false)
}

// Close stops the detector; further Process calls are no-ops. Idempotent.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.setSpeakingLocked(false)
}

func (d *Detector) setSpeakingLocked(speaking bool) {
	if speaking == d.speaking {
		return
	}
	d.speaking = speaking
	if d.onChange != nil {
		d.onChange(speaking)
	}
}

// updateEnvelope tracks the observed energy band: the maximum decays when not
// exceeded, the minimum only ever decreases.
func (d *Detector) updateEnvelope(energy float64) {
	d.envMax *= envelopeDecay
	if energy > d.envMax {
		d.envMax = energy
	}
	if energy < d.envMin {
		d.envMin = energy
	}
}

func (d *Detector) envelopeRange() float64 {
	r := d.envMax - d.envMin
	if r < minEnvelopeRange {
		return minEnvelopeRange
	}
	return r
}

func (d *Detector) pushHistory(energy float64) {
	if len(d.history) == historySize {
		copy(d.history, d.history[1:])
		d.history = d.history[:historySize-1]
	}
	d.history = append(d.history, energy)
}

func (d *Detector) threshold() float64 {
	if len(d.history) == 0 {
		return thresholdFloor
	}
	var sum float64
	for _, e := range d.history {
		sum += e
	}
	adaptive := thresholdGain * sum / float64(len(d.history))
	return math.Max(thresholdFloor, adaptive)
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
