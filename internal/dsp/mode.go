package dsp

import (
	"fmt"
	"strings"
)

// Mode selects the demodulation scheme for a reception.
type Mode string

const (
	AM Mode = "AM"
	FM Mode = "FM"
)

// ParseMode accepts "am"/"fm" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case AM:
		return AM, nil
	case FM:
		return FM, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

func (m Mode) String() string { return string(m) }
