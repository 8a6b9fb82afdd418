package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	samples := []float64{0.5, -0.5, 1.0}
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = Quantize(s)
	}

	b := EncodeFrame(nil, 55.0, pcm)
	require.Len(t, b, 2*(len(samples)+1))

	f, err := DecodeFrame(b)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, f.RSSI, 1.0/100)
	require.Len(t, f.Samples, len(samples))
	for i, s := range samples {
		assert.InDelta(t, s, f.Samples[i], 1.0/32767)
	}
	assert.Equal(t, pcm, PCM(b))
}

func TestEncodeFrame_LittleEndianLayout(t *testing.T) {
	b := EncodeFrame(nil, 1.5, []int16{-1, 2})
	assert.Equal(t, []byte{150, 0, 0xff, 0xff, 2, 0}, b)
}

func TestDecodeFrame_Short(t *testing.T) {
	_, err := DecodeFrame([]byte{1})
	assert.ErrorIs(t, err, ErrShortFrame)

	f, err := DecodeFrame([]byte{0x10, 0x27})
	require.NoError(t, err)
	assert.Equal(t, 100.0, f.RSSI)
	assert.Empty(t, f.Samples)
}

func TestRSSIPercent(t *testing.T) {
	assert.Equal(t, 0.0, RSSIPercent(0))
	assert.InDelta(t, 40*math.Log10(11), RSSIPercent(10), 1e-9)
	assert.Equal(t, 100.0, RSSIPercent(1e6))
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, int16(32767), Quantize(1))
	assert.Equal(t, int16(-32767), Quantize(-1))
	assert.Equal(t, int16(16384), Quantize(0.5))
	assert.Equal(t, int16(math.MaxInt16), Quantize(2))
}
