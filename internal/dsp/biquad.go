package dsp

import "math"

// Coefficients of a 2nd-order section, normalized by a0.
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// LowPass returns the RBJ cookbook low-pass coefficients for cutoff fc at
// sample rate fs with quality factor q.
func LowPass(fs, fc, q float64) Coefficients {
	omega := 2 * math.Pi * fc / fs
	sn, cs := math.Sin(omega), math.Cos(omega)
	alpha := sn / (2 * q)

	a0 := 1 + alpha
	return Coefficients{
		B0: (1 - cs) / 2 / a0,
		B1: (1 - cs) / a0,
		B2: (1 - cs) / 2 / a0,
		A1: -2 * cs / a0,
		A2: (1 - alpha) / a0,
	}
}

// BiquadState is the delay line of one section.
type BiquadState struct {
	X1, X2 float64
	Y1, Y2 float64
}

// Apply runs one step of the direct form I difference equation. It does not
// mutate s; the caller keeps the returned state.
func (c Coefficients) Apply(s BiquadState, x float64) (BiquadState, float64) {
	y := c.B0*x + c.B1*s.X1 + c.B2*s.X2 - c.A1*s.Y1 - c.A2*s.Y2
	return BiquadState{X1: x, X2: s.X1, Y1: y, Y2: s.Y1}, y
}

// Section pairs coefficients with their state.
type Section struct {
	Coefficients
	State BiquadState
}

// NewLowPassSection creates a single low-pass biquad.
func NewLowPassSection(fs, fc, q float64) Section {
	return Section{Coefficients: LowPass(fs, fc, q)}
}

// Process filters a single sample.
func (s *Section) Process(x float64) float64 {
	var y float64
	s.State, y = s.Coefficients.Apply(s.State, x)
	return y
}

// Reset zeroes the delay line and keeps the coefficients.
func (s *Section) Reset() {
	s.State = BiquadState{}
}

// CascadeStages is the number of sections in a Cascade (4th-order response).
const CascadeStages = 2

// Cascade is a fixed chain of identical low-pass sections.
type Cascade struct {
	stages [CascadeStages]Section
}

// NewCascade creates a cascade with every stage set to the same low-pass design.
func NewCascade(fs, fc, q float64) Cascade {
	var c Cascade
	c.SetLowPass(fs, fc, q)
	return c
}

// SetLowPass recomputes the coefficients of every stage in place. The delay
// lines are left untouched.
func (c *Cascade) SetLowPass(fs, fc, q float64) {
	coeffs := LowPass(fs, fc, q)
	for i := range c.stages {
		c.stages[i].Coefficients = coeffs
	}
}

// Process runs x through every stage in order.
func (c *Cascade) Process(x float64) float64 {
	for i := range c.stages {
		x = c.stages[i].Process(x)
	}
	return x
}

// Reset zeroes the delay lines of every stage.
func (c *Cascade) Reset() {
	for i := range c.stages {
		c.stages[i].Reset()
	}
}
