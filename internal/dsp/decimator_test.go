package dsp

import (
	"math"
	"testing"
)

const (
	testNativeRate = 250000
	testAudioRate  = 16000
)

// syntheticIQ builds interleaved unsigned I/Q bytes of an FM-like tone.
func syntheticIQ(pairs int) []byte {
	buf := make([]byte, 0, 2*pairs)
	phase := 0.0
	for n := 0; n < pairs; n++ {
		phase += 0.3 + 0.2*math.Sin(float64(n)/40)
		buf = append(buf,
			byte(127.5+60*math.Cos(phase)),
			byte(127.5+60*math.Sin(phase)))
	}
	return buf
}

type chain struct {
	dec  *Decimator
	cond *AudioConditioner
}

func newChain(mode Mode) chain {
	factor := DecimationFactor(testNativeRate, testAudioRate)
	f := NewChannelFilter(testNativeRate, mode)
	d := NewDemodulator(mode)
	return chain{
		dec:  NewDecimator(factor, f, d),
		cond: NewAudioConditioner(mode, float64(testNativeRate)/float64(factor)),
	}
}

func (c chain) feed(chunk []byte) []float64 {
	var out []float64
	for _, b := range c.dec.Push(chunk, nil) {
		out = append(out, c.cond.Process(b.Value, b.Magnitude))
	}
	return out
}

func TestDecimationFactor(t *testing.T) {
	if got := DecimationFactor(250000, 16000); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
	if got := DecimationFactor(8000, 16000); got != 1 {
		t.Errorf("expected 1 when the target exceeds the native rate, got %d", got)
	}
}

func TestDecimator_ChunkBoundaryInvariant(t *testing.T) {
	data := syntheticIQ(15*300 + 7)

	for _, mode := range []Mode{AM, FM} {
		reference := newChain(mode).feed(data)
		if len(reference) != 300 {
			t.Fatalf("%s: expected 300 samples, got %d", mode, len(reference))
		}

		for _, size := range []int{1, 2, 3, 7, 29, 30, 31, 1000, 4097} {
			c := newChain(mode)
			var got []float64
			for i := 0; i < len(data); i += size {
				end := i + size
				if end > len(data) {
					end = len(data)
				}
				got = append(got, c.feed(data[i:end])...)
			}

			if len(got) != len(reference) {
				t.Fatalf("%s chunk %d: expected %d samples, got %d", mode, size, len(reference), len(got))
			}
			for k := range reference {
				if got[k] != reference[k] {
					t.Fatalf("%s chunk %d: sample %d differs: %g vs %g", mode, size, k, got[k], reference[k])
				}
			}
		}
	}
}

func TestDecimator_CarriesIncompleteBlock(t *testing.T) {
	c := newChain(AM)
	out := c.dec.Push(make([]byte, 2*15-1), nil)
	if len(out) != 0 {
		t.Fatalf("expected no output for a partial block, got %d", len(out))
	}
	if c.dec.Pending() != 29 {
		t.Fatalf("expected 29 carried bytes, got %d", c.dec.Pending())
	}

	out = c.dec.Push([]byte{128}, nil)
	if len(out) != 1 || c.dec.Pending() != 0 {
		t.Fatalf("expected one block and an empty carry, got %d blocks and %d bytes", len(out), c.dec.Pending())
	}

	c.dec.Push([]byte{1, 2, 3}, nil)
	c.dec.Reset()
	if c.dec.Pending() != 0 {
		t.Errorf("expected Reset to drop carried bytes")
	}
}

func TestDecimator_AveragesMagnitude(t *testing.T) {
	f := NewChannelFilter(testNativeRate, AM)
	dec := NewDecimator(4, f, NewDemodulator(AM))

	// 158-127.5 and 168-127.5: a constant input settles to its own magnitude.
	chunk := make([]byte, 0, 2*4*2000)
	for n := 0; n < 4*2000; n++ {
		chunk = append(chunk, 158, 168)
	}
	blocks := dec.Push(chunk[:len(chunk)-1], nil)
	last := blocks[len(blocks)-1]
	if !almostEqual(last.Magnitude, math.Hypot(30.5, 40.5), 1e-3) {
		t.Errorf("expected magnitude %f, got %f", math.Hypot(30.5, 40.5), last.Magnitude)
	}
	if last.Value != last.Magnitude {
		t.Errorf("expected AM value to equal magnitude")
	}
}
