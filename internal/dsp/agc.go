package dsp

const (
	agcTarget   = 0.6
	agcDecay    = 0.99
	agcAttack   = 0.002
	agcMinGain  = 0.01
	agcMaxFM    = 10.0
	agcMaxAM    = 100.0
	agcInitGain = 10.0
)

// AGC normalizes output level towards agcTarget and hard-clips to [-1, 1].
type AGC struct {
	Gain    float64
	MaxGain float64
}

// NewAGC returns an AGC with the initial gain and the mode's ceiling.
func NewAGC(mode Mode) AGC {
	return AGC{Gain: agcInitGain, MaxGain: MaxGain(mode)}
}

// MaxGain returns the gain ceiling for mode.
func MaxGain(mode Mode) float64 {
	if mode == AM {
		return agcMaxAM
	}
	return agcMaxFM
}

// Apply updates the gain from x and returns the clipped, amplified sample.
func (a *AGC) Apply(x float64) float64 {
	level := x * a.Gain
	if level < 0 {
		level = -level
	}
	if level > agcTarget {
		a.Gain *= agcDecay
	} else {
		a.Gain += agcAttack
	}
	if a.Gain > a.MaxGain {
		a.Gain = a.MaxGain
	}
	if a.Gain < agcMinGain {
		a.Gain = agcMinGain
	}

	y := x * a.Gain
	if y > 1 {
		return 1
	} else if y < -1 {
		return -1
	}
	return y
}
