package radio

import (
	"log"
	"sync"
	"time"

	"sdr-monitor/internal/dsp"
)

// DefaultSettleTime is how long samples are discarded after a retune.
const DefaultSettleTime = 800 * time.Millisecond

// Tuner accepts frequency commands. Writes are fire-and-forget.
type Tuner interface {
	SetFrequency(hz uint32) error
}

// Controller is the Idle/Tuning state machine guarding the session. A
// retune enters Tuning until the settle deadline passes; a retune while
// Tuning restarts the deadline.
type Controller struct {
	settle time.Duration
	tuner  Tuner

	mu       sync.RWMutex
	session  Session
	deadline time.Time
}

// NewController starts Idle with the given session.
func NewController(initial Session, settle time.Duration, tuner Tuner) *Controller {
	initial.Tuning = false
	return &Controller{settle: settle, tuner: tuner, session: initial}
}

// Snapshot returns a consistent copy of the session.
func (c *Controller) Snapshot() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Retune records the new parameters, commands the tuner and enters Tuning.
func (c *Controller) Retune(freq uint32, mode dsp.Mode, now time.Time) Session {
	c.mu.Lock()
	c.session.Frequency = freq
	c.session.Mode = mode
	c.session.Tuning = true
	c.deadline = now.Add(c.settle)
	s := c.session
	c.mu.Unlock()

	if c.tuner != nil {
		if err := c.tuner.SetFrequency(freq); err != nil {
			log.Printf("[WARN] radio: tuner command: %v", err)
		}
	}
	return s
}

// Tuning reports whether the settle window is still open at now, moving
// to Idle once it has passed.
func (c *Controller) Tuning(now time.Time) bool {
	c.mu.RLock()
	tuning := c.session.Tuning
	deadline := c.deadline
	c.mu.RUnlock()
	if !tuning {
		return false
	}
	if now.Before(deadline) {
		return true
	}

	c.mu.Lock()
	if c.deadline.Equal(deadline) {
		c.session.Tuning = false
	}
	tuning = c.session.Tuning
	c.mu.Unlock()
	return tuning
}
