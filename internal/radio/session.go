// Package radio owns the reception state: the current RadioSession, the
// retune state machine and the pipeline that turns tuner bytes into frames.
package radio

import (
	"errors"
	"fmt"

	"sdr-monitor/internal/dsp"
)

const (
	// MinFrequency and MaxFrequency bound retune requests.
	MinFrequency uint32 = 76_000_000
	MaxFrequency uint32 = 137_000_000
)

// ErrFrequencyRange is returned for retune requests outside the tuning window.
var ErrFrequencyRange = errors.New("radio: frequency out of range")

// Session is a snapshot of the current reception parameters.
type Session struct {
	Frequency  uint32
	Mode       dsp.Mode
	Tuning     bool
	SampleRate int
	Decimation int
}

// AudioRate is the actual output rate, SampleRate/Decimation.
func (s Session) AudioRate() float64 {
	if s.Decimation == 0 {
		return 0
	}
	return float64(s.SampleRate) / float64(s.Decimation)
}

// ValidateTune rejects frequencies and modes that must never reach the
// pipeline.
func ValidateTune(freq int64, mode string) (uint32, dsp.Mode, error) {
	m, err := dsp.ParseMode(mode)
	if err != nil {
		return 0, "", err
	}
	if freq < int64(MinFrequency) || freq > int64(MaxFrequency) {
		return 0, "", fmt.Errorf("%w: %d Hz", ErrFrequencyRange, freq)
	}
	return uint32(freq), m, nil
}
