package dsp

import "testing"

func impulseResponse(f *ChannelFilter, n int) (is, qs []float64) {
	is = make([]float64, n)
	qs = make([]float64, n)
	for k := 0; k < n; k++ {
		x := 0.0
		if k == 0 {
			x = 1
		}
		is[k], qs[k] = f.Process(x, -x)
	}
	return is, qs
}

func TestChannelFilter_ResetReproducesImpulseResponse(t *testing.T) {
	const sampleRate = 250000
	const length = 256

	for _, mode := range []Mode{AM, FM} {
		wantI, wantQ := impulseResponse(NewChannelFilter(sampleRate, mode), length)

		f := NewChannelFilter(sampleRate, mode)
		for k := 0; k < 1000; k++ {
			f.Process(float64(k%17)-8, float64(k%5)*3)
		}
		f.Reset()
		gotI, gotQ := impulseResponse(f, length)

		for k := range wantI {
			if gotI[k] != wantI[k] || gotQ[k] != wantQ[k] {
				t.Fatalf("%s: impulse response differs at %d: (%g,%g) vs (%g,%g)",
					mode, k, gotI[k], gotQ[k], wantI[k], wantQ[k])
			}
		}
	}
}

func TestChannelFilter_SetBandwidthKeepsState(t *testing.T) {
	f := NewChannelFilter(250000, FM)
	f.Process(10, 10)
	before := f.i.stages[0].State

	f.SetBandwidth(AM)
	if f.i.stages[0].State != before {
		t.Errorf("expected SetBandwidth to keep the delay line")
	}
	if f.Cutoff() != AMCutoff {
		t.Errorf("expected cutoff %f, got %f", AMCutoff, f.Cutoff())
	}
}

func TestLowPass_UnityDCGain(t *testing.T) {
	c := LowPass(16666.67, AudioCutoff, 0.707)
	dc := (c.B0 + c.B1 + c.B2) / (1 + c.A1 + c.A2)
	if !almostEqual(dc, 1, 1e-9) {
		t.Errorf("expected unity DC gain, got %f", dc)
	}
}

func TestCascade_StepSettles(t *testing.T) {
	c := NewCascade(250000, AMCutoff, ChannelQ)
	var y float64
	for k := 0; k < 5000; k++ {
		y = c.Process(1)
	}
	if !almostEqual(y, 1, 1e-6) {
		t.Errorf("expected the step response to settle at 1, got %f", y)
	}
}
