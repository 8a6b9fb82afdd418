package dsp

import "math"

const (
	// iqDCDecay is the pole of the FM I/Q DC trackers.
	iqDCDecay = 0.99
)

// Demodulator turns filtered I/Q samples into a raw audio value and a
// magnitude (the RSSI contribution). FM uses a phase-difference
// discriminator on DC-corrected I/Q; AM is a plain envelope detector.
type Demodulator struct {
	mode      Mode
	iDC, qDC  float64
	prevPhase float64
}

// NewDemodulator creates a demodulator for mode.
func NewDemodulator(mode Mode) *Demodulator {
	return &Demodulator{mode: mode}
}

// Mode returns the active demodulation mode.
func (d *Demodulator) Mode() Mode {
	return d.mode
}

// SetMode switches the mode and clears the state.
func (d *Demodulator) SetMode(mode Mode) {
	d.mode = mode
	d.Reset()
}

// Reset clears the DC trackers and the phase history.
func (d *Demodulator) Reset() {
	d.iDC, d.qDC = 0, 0
	d.prevPhase = 0
}

// Demodulate processes one filtered sample.
func (d *Demodulator) Demodulate(i, q float64) (value, magnitude float64) {
	magnitude = math.Hypot(i, q)
	if d.mode == AM {
		// AM loudness and signal strength are the same number.
		return magnitude, magnitude
	}

	d.iDC = d.iDC*iqDCDecay + i*(1-iqDCDecay)
	d.qDC = d.qDC*iqDCDecay + q*(1-iqDCDecay)

	phase := math.Atan2(q-d.qDC, i-d.iDC)
	delta := WrapPhase(phase - d.prevPhase)
	d.prevPhase = phase
	return delta, magnitude
}

// WrapPhase folds a phase difference of two atan2 results into (-π, π].
func WrapPhase(delta float64) float64 {
	if delta > math.Pi {
		delta -= 2 * math.Pi
	} else if delta <= -math.Pi {
		delta += 2 * math.Pi
	}
	return delta
}
