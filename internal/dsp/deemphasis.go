package dsp

// DeemphasisAlpha is the FM de-emphasis coefficient at the decimated rate.
const DeemphasisAlpha = 0.38

// OnePole is a first-order low-pass: y += alpha * (x - y).
type OnePole struct {
	Alpha float64
	prev  float64
}

// NewDeemphasis creates the FM de-emphasis filter.
func NewDeemphasis() OnePole {
	return OnePole{Alpha: DeemphasisAlpha}
}

// Filter applies the filter with its own coefficient.
func (p *OnePole) Filter(x float64) float64 {
	return p.Step(x, p.Alpha)
}

// Step applies the filter with a caller-supplied coefficient.
func (p *OnePole) Step(x, alpha float64) float64 {
	p.prev += alpha * (x - p.prev)
	return p.prev
}

// Reset returns the accumulator to zero.
func (p *OnePole) Reset() {
	p.prev = 0
}
