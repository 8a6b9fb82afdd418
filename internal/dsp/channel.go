package dsp

const (
	// AMCutoff is the IF low-pass cutoff for the narrow AM channel.
	AMCutoff = 5000.0
	// FMCutoff is the IF low-pass cutoff for the wide FM channel.
	FMCutoff = 100000.0
	// ChannelQ keeps the IF sections free of peaking.
	ChannelQ = 0.707
)

// ChannelFilter selects the occupied bandwidth with independent I and Q
// low-pass cascades.
type ChannelFilter struct {
	sampleRate float64
	cutoff     float64
	i, q       Cascade
}

// NewChannelFilter creates a filter for the given native sample rate, sized for mode.
func NewChannelFilter(sampleRate float64, mode Mode) *ChannelFilter {
	f := &ChannelFilter{sampleRate: sampleRate}
	f.SetBandwidth(mode)
	return f
}

// Cutoff returns the current cutoff frequency in Hz.
func (f *ChannelFilter) Cutoff() float64 {
	return f.cutoff
}

// SetBandwidth recomputes the coefficients for mode without touching the
// delay lines.
func (f *ChannelFilter) SetBandwidth(mode Mode) {
	f.cutoff = Cutoff(mode)
	f.i.SetLowPass(f.sampleRate, f.cutoff, ChannelQ)
	f.q.SetLowPass(f.sampleRate, f.cutoff, ChannelQ)
}

// Reset zeroes all delay elements.
func (f *ChannelFilter) Reset() {
	f.i.Reset()
	f.q.Reset()
}

// Process filters one I/Q sample.
func (f *ChannelFilter) Process(i, q float64) (float64, float64) {
	return f.i.Process(i), f.q.Process(q)
}

// Cutoff returns the IF cutoff for mode.
func Cutoff(mode Mode) float64 {
	if mode == AM {
		return AMCutoff
	}
	return FMCutoff
}

// BandwidthInfo is the human readable description sent to listeners.
func BandwidthInfo(mode Mode) string {
	if mode == AM {
		return "Sharp (5kHz)"
	}
	return "Wide (100kHz)"
}
