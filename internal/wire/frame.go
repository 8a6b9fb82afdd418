// Package wire holds the formats exchanged with listeners: binary audio
// frames and JSON status/command messages.
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortFrame is returned when a binary frame has no RSSI element.
var ErrShortFrame = errors.New("wire: frame shorter than one element")

const (
	rssiScale  = 100.0
	audioScale = 32767.0
)

// Frame is a decoded audio frame.
type Frame struct {
	RSSI    float64
	Samples []float64
}

// RSSIPercent converts a mean I/Q magnitude to a 0..100 signal strength.
func RSSIPercent(avgMagnitude float64) float64 {
	db := 20 * math.Log10(avgMagnitude+1)
	return math.Min(100, math.Max(0, db/50*100))
}

// Quantize converts an audio sample in [-1, 1] to 16-bit PCM.
func Quantize(sample float64) int16 {
	return int16(clampInt16(math.Round(sample * audioScale)))
}

// EncodeFrame appends the little-endian int16 frame [rssi*100, pcm...] to dst.
func EncodeFrame(dst []byte, rssiPercent float64, pcm []int16) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(clampInt16(math.Round(rssiPercent*rssiScale)))))
	for _, s := range pcm {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// DecodeFrame parses a binary frame. A trailing odd byte is ignored.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < 2 {
		return Frame{}, ErrShortFrame
	}
	f := Frame{
		RSSI:    float64(int16(binary.LittleEndian.Uint16(b))) / rssiScale,
		Samples: make([]float64, 0, len(b)/2-1),
	}
	for i := 2; i+1 < len(b); i += 2 {
		f.Samples = append(f.Samples, float64(int16(binary.LittleEndian.Uint16(b[i:])))/audioScale)
	}
	return f, nil
}

// PCM returns the audio elements of a binary frame as raw int16.
func PCM(b []byte) []int16 {
	if len(b) < 4 {
		return nil
	}
	pcm := make([]int16, 0, len(b)/2-1)
	for i := 2; i+1 < len(b); i += 2 {
		pcm = append(pcm, int16(binary.LittleEndian.Uint16(b[i:])))
	}
	return pcm
}

func clampInt16(v float64) float64 {
	return math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
}
