// Package squelch gates received audio per listener: it tracks the noise
// floor, opens above floor+margin, holds briefly after the signal drops
// and keeps the playback cursor within bounds.
package squelch

import (
	"time"

	"sdr-monitor/internal/dsp"
)

const (
	MinMargin = -50.0
	MaxMargin = 50.0

	DefaultMarginAM = 10.0
	DefaultMarginFM = -20.0

	HoldTime    = 800 * time.Millisecond
	BufferAhead = 150 * time.Millisecond
	MaxAhead    = 3 * time.Second
	ResyncAhead = time.Second
	// RetuneLead is where the cursor restarts after a status change.
	RetuneLead  = 100 * time.Millisecond

	floorDecay   = 0.9
	floorCreep   = 0.005
	amHysteresis = 0.9
)

// DefaultMargin returns the starting margin for mode.
func DefaultMargin(mode dsp.Mode) float64 {
	if mode == dsp.AM {
		return DefaultMarginAM
	}
	return DefaultMarginFM
}

// ClampMargin limits m to [MinMargin, MaxMargin].
func ClampMargin(m float64) float64 {
	if m < MinMargin {
		return MinMargin
	}
	if m > MaxMargin {
		return MaxMargin
	}
	return m
}

// Decision is the outcome of evaluating one frame.
type Decision struct {
	Floor     float64
	Threshold float64
	Open      bool
	// Audible frames should be played starting at Start.
	Audible bool
	Start   time.Duration
}

// Scheduler holds one listener's squelch state. Times are offsets on the
// listener's playback clock. It is not safe for concurrent use.
type Scheduler struct {
	mode   dsp.Mode
	margin float64

	floor    float64
	floorSet bool

	open       bool
	everOpen   bool
	lastSignal time.Duration

	cursor time.Duration
}

// New returns a scheduler with the mode's default margin and no floor yet.
func New(mode dsp.Mode) *Scheduler {
	return &Scheduler{mode: mode, margin: DefaultMargin(mode)}
}

func (s *Scheduler) Mode() dsp.Mode        { return s.mode }
func (s *Scheduler) Margin() float64       { return s.margin }
func (s *Scheduler) Cursor() time.Duration { return s.cursor }

// Floor returns the noise floor estimate and whether it has been seeded.
func (s *Scheduler) Floor() (float64, bool) {
	return s.floor, s.floorSet
}

// SetMode switches gating behaviour. The margin is left alone.
func (s *Scheduler) SetMode(mode dsp.Mode) {
	s.mode = mode
}

// SetMargin sets the margin, clamped.
func (s *Scheduler) SetMargin(m float64) float64 {
	s.margin = ClampMargin(m)
	return s.margin
}

// AdjustMargin nudges the margin by delta, clamped.
func (s *Scheduler) AdjustMargin(delta float64) float64 {
	return s.SetMargin(s.margin + delta)
}

// Reset forgets the floor (or seeds it from saved), closes the squelch and
// restarts the cursor just ahead of now.
func (s *Scheduler) Reset(saved *float64, now time.Duration) {
	s.floor, s.floorSet = 0, false
	if saved != nil && *saved > 0 {
		s.floor, s.floorSet = *saved, true
	}
	s.open = false
	s.everOpen = false
	s.lastSignal = 0
	s.cursor = now + RetuneLead
}

// Resync restarts the cursor just ahead of now and keeps the floor and
// gate state.
func (s *Scheduler) Resync(now time.Duration) {
	s.cursor = now + RetuneLead
}

// Evaluate updates the floor with rssi, decides whether the squelch is open
// and, for audible frames, reserves dur on the playback timeline.
func (s *Scheduler) Evaluate(rssi float64, dur, now time.Duration) Decision {
	if !s.floorSet {
		s.floor, s.floorSet = rssi, true
	}
	if rssi < s.floor {
		s.floor = s.floor*floorDecay + rssi*(1-floorDecay)
	} else if !s.open && s.floor < rssi {
		s.floor += floorCreep
	}

	threshold := s.floor + s.margin
	if s.mode == dsp.AM && s.open {
		s.open = rssi > threshold*amHysteresis
	} else {
		s.open = rssi > threshold
	}

	if s.open {
		s.lastSignal = now
		s.everOpen = true
	}

	d := Decision{Floor: s.floor, Threshold: threshold, Open: s.open}
	d.Audible = s.everOpen && now-s.lastSignal < HoldTime
	if !d.Audible {
		if s.cursor < now {
			s.cursor = now
		}
		return d
	}

	if s.cursor < now {
		s.cursor = now + BufferAhead
	} else if s.cursor > now+MaxAhead {
		s.cursor = now + ResyncAhead
	}
	d.Start = s.cursor
	s.cursor += dur
	return d
}
