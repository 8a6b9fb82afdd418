// Package recorder writes the live post-AGC audio to lossless files on
// request. Recording failures end the recording and are reported; they
// never reach the pipeline.
package recorder

import (
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"sdr-monitor/internal/dsp"
	"sdr-monitor/internal/radio"
	"sdr-monitor/internal/store"
)

var (
	ErrAlreadyRecording = errors.New("recorder: already recording")
	ErrNotRecording     = errors.New("recorder: not recording")
)

// FileName stamps a recording with mode, frequency and local start time.
func FileName(mode dsp.Mode, freq uint32, at time.Time, ext string) string {
	return fmt.Sprintf("%s_%d_%s%s", mode, freq, at.Format("20060102_150405"), ext)
}

// Recorder is a radio.Sink that forwards frames to the active recording.
type Recorder struct {
	dir  string
	rate int

	// OnFailure is called, without locks held, after a write error ended
	// a recording.
	OnFailure func(name string, err error)

	format Format
	now    func() time.Time

	mu        sync.Mutex
	name      string
	enc       Encoder
	telemetry *RSSIWriter
}

// New records into dir at the given audio rate in format.
func New(dir string, audioRate float64, format Format) *Recorder {
	return &Recorder{
		dir:    dir,
		rate:   int(math.Round(audioRate)),
		format: format,
		now:    time.Now,
	}
}

// IsRecording reports whether a recording is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc != nil
}

// Current returns the active file name, if any.
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// Start opens a new recording for the given tuning and returns its name.
func (r *Recorder) Start(freq uint32, mode dsp.Mode) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc != nil {
		return r.name, ErrAlreadyRecording
	}

	now := r.now()
	name := FileName(mode, freq, now, r.format.Ext)
	path := filepath.Join(r.dir, name)
	enc, err := r.format.Open(path, r.rate)
	if err != nil {
		return "", fmt.Errorf("recorder: open %s: %w", name, err)
	}

	sidecar := store.SidecarPath(path)
	telemetry, err := NewRSSIWriter(sidecar, map[string]string{
		"frequency":  strconv.FormatUint(uint64(freq), 10),
		"mode":       mode.String(),
		"audio_rate": strconv.Itoa(r.rate),
		"format":     r.format.Name,
		"started":    now.Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("[WARN] recorder: telemetry disabled: %v", err)
		telemetry = nil
	}

	r.name, r.enc, r.telemetry = name, enc, telemetry
	log.Printf("[INFO] recorder: started %s", name)
	return name, nil
}

// Stop finalizes the active recording.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return "", ErrNotRecording
	}
	name := r.name
	err := r.closeLocked()
	log.Printf("[INFO] recorder: stopped %s", name)
	return name, err
}

func (r *Recorder) closeLocked() error {
	var err error
	if r.enc != nil {
		err = r.enc.Close()
	}
	if r.telemetry != nil {
		if terr := r.telemetry.Close(); terr != nil {
			log.Printf("[WARN] recorder: telemetry close: %v", terr)
		}
	}
	r.name, r.enc, r.telemetry = "", nil, nil
	return err
}

// WriteFrame appends a frame's PCM to the active recording.
func (r *Recorder) WriteFrame(o radio.Output) {
	r.mu.Lock()
	if r.enc == nil {
		r.mu.Unlock()
		return
	}

	if r.telemetry != nil {
		if err := r.telemetry.Write(r.now(), o.RSSI, len(o.PCM)); err != nil {
			log.Printf("[WARN] recorder: %v", err)
			r.telemetry.Close()
			r.telemetry = nil
		}
	}

	err := r.enc.Write(o.PCM)
	if err == nil {
		r.mu.Unlock()
		return
	}

	name := r.name
	log.Printf("[ERROR] recorder: %s: %v", name, err)
	r.closeLocked()
	cb := r.OnFailure
	r.mu.Unlock()

	if cb != nil {
		cb(name, err)
	}
}
