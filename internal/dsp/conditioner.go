package dsp

import "math"

const (
	dcDecayFM = 0.999
	dcDecayAM = 0.95

	smoothWeak    = 0.02
	smoothStrong  = 0.35
	smoothLowEdge = 40.0
	smoothTopEdge = 70.0

	softMuteEdge = 25.0

	// AudioCutoff is the fixed post-demodulation low-pass.
	AudioCutoff = 7000.0
	audioQ      = 0.707
)

// AudioConditioner shapes decimated demodulator output into bounded audio:
// DC removal, FM de-emphasis, signal-dependent smoothing, a fixed 7 kHz
// low-pass, FM soft-mute and AGC.
type AudioConditioner struct {
	mode      Mode
	audioRate float64

	dc       float64
	deemph   OnePole
	smooth1  OnePole
	smooth2  OnePole
	audioLPF Section
	agc      AGC
}

// NewAudioConditioner creates a conditioner running at the actual
// (post-decimation) audio rate.
func NewAudioConditioner(mode Mode, audioRate float64) *AudioConditioner {
	c := &AudioConditioner{
		audioRate: audioRate,
		audioLPF:  NewLowPassSection(audioRate, AudioCutoff, audioQ),
	}
	c.SetMode(mode)
	return c
}

// SetMode switches the mode and resets all state.
func (c *AudioConditioner) SetMode(mode Mode) {
	c.mode = mode
	c.Reset()
}

// Reset returns every accumulator, the LPF delay line and the AGC gain to
// their initial values.
func (c *AudioConditioner) Reset() {
	c.dc = 0
	c.deemph = NewDeemphasis()
	c.smooth1.Reset()
	c.smooth2.Reset()
	c.audioLPF.Reset()
	c.agc = NewAGC(c.mode)
}

// Gain exposes the current AGC gain.
func (c *AudioConditioner) Gain() float64 {
	return c.agc.Gain
}

// Process conditions one decimated value. strength is the block's mean
// I/Q magnitude.
func (c *AudioConditioner) Process(value, strength float64) float64 {
	isFM := c.mode == FM

	decay := dcDecayAM
	if isFM {
		decay = dcDecayFM
	}
	c.dc = c.dc*decay + value*(1-decay)
	audio := value - c.dc

	if isFM {
		audio = c.deemph.Filter(audio)
	}

	strength = math.Min(100, math.Max(0, strength))
	alpha := smoothStrong
	if isFM {
		alpha = SmoothingAlpha(strength)
	}
	audio = c.smooth2.Step(c.smooth1.Step(audio, alpha), alpha)

	audio = c.audioLPF.Process(audio)

	if isFM {
		audio *= SoftMuteGain(strength)
	}
	return c.agc.Apply(audio)
}

// SmoothingAlpha maps FM signal strength to the smoothing coefficient:
// heavy below 40, light above 70, linear in between.
func SmoothingAlpha(strength float64) float64 {
	switch {
	case strength < smoothLowEdge:
		return smoothWeak
	case strength > smoothTopEdge:
		return smoothStrong
	}
	return smoothWeak + (strength-smoothLowEdge)*((smoothStrong-smoothWeak)/(smoothTopEdge-smoothLowEdge))
}

// SoftMuteGain attenuates weak FM signals by sqrt(strength/25).
func SoftMuteGain(strength float64) float64 {
	if strength >= softMuteEdge {
		return 1
	}
	g := strength / softMuteEdge
	if g < 0 {
		g = 0
	}
	return math.Sqrt(g)
}
