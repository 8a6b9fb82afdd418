// Package listener is the receiving end of the monitor: it applies the
// per-listener squelch to incoming frames and schedules audible blocks on
// a playback timeline.
package listener

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"sdr-monitor/internal/dsp"
	"sdr-monitor/internal/radio"
	"sdr-monitor/internal/squelch"
	"sdr-monitor/internal/wire"
)

// Sink is a playback timeline.
type Sink interface {
	Now() time.Duration
	Duration(samples int) time.Duration
	Schedule(start time.Duration, pcm []int16) int
}

// OpenFunc opens a sink at the server's audio rate.
type OpenFunc func(rate int) (Sink, error)

// Session is one listener's state. Methods must be called from a single
// goroutine.
type Session struct {
	open  OpenFunc
	sink  Sink
	rate  int
	sched *squelch.Scheduler

	margin *float64

	freq uint32
	mode dsp.Mode

	frames, audible int
	bookmarks       []wire.Bookmark
}

// New creates a session. margin, if non-nil, overrides the per-mode default.
func New(open OpenFunc, margin *float64) *Session {
	s := &Session{open: open, sched: squelch.New(dsp.FM)}
	if margin != nil {
		m := squelch.ClampMargin(*margin)
		s.margin = &m
		s.sched.SetMargin(m)
	}
	return s
}

// Frequency and Mode of the last status update.
func (s *Session) Frequency() uint32 { return s.freq }
func (s *Session) Mode() dsp.Mode    { return s.mode }

// Scheduler exposes the squelch state.
func (s *Session) Scheduler() *squelch.Scheduler { return s.sched }

// Handle processes one text message from the server.
func (s *Session) Handle(msg []byte) error {
	typ, err := wire.MessageType(msg)
	if err != nil {
		return err
	}
	switch typ {
	case wire.TypeStatusUpdate:
		var st wire.Status
		if err := json.Unmarshal(msg, &st); err != nil {
			return fmt.Errorf("listener: status: %w", err)
		}
		return s.HandleStatus(st)
	case wire.TypeRecordings:
		var l wire.RecordingList
		if err := json.Unmarshal(msg, &l); err != nil {
			return fmt.Errorf("listener: recordings: %w", err)
		}
		log.Printf("[INFO] listener: %d recordings on server", len(l.Data))
	case wire.TypeBookmarks:
		var l wire.BookmarkList
		if err := json.Unmarshal(msg, &l); err != nil {
			return fmt.Errorf("listener: bookmarks: %w", err)
		}
		s.bookmarks = l.Data
	case wire.TypeRecordingStatus:
		var rs wire.RecordingStatus
		if err := json.Unmarshal(msg, &rs); err != nil {
			return fmt.Errorf("listener: recording status: %w", err)
		}
		switch {
		case rs.Error != "":
			log.Printf("[WARN] listener: recording %s failed: %s", rs.Filename, rs.Error)
		case rs.Recording:
			log.Printf("[INFO] listener: recording %s", rs.Filename)
		default:
			log.Printf("[INFO] listener: recording %s finished", rs.Filename)
		}
	default:
		log.Printf("[DEBUG] listener: ignoring %q", typ)
	}
	return nil
}

// HandleStatus adopts the server's tuning. The cursor always resyncs just
// ahead of now. The floor restarts on a new frequency or mode, or is
// replaced by a saved value; otherwise the running estimate is kept.
func (s *Session) HandleStatus(st wire.Status) error {
	mode, err := dsp.ParseMode(st.Mode)
	if err != nil {
		return err
	}

	rate := int(math.Round(st.AudioRate))
	if s.sink == nil && rate > 0 {
		sink, err := s.open(rate)
		if err != nil {
			return fmt.Errorf("listener: open audio: %w", err)
		}
		s.sink, s.rate = sink, rate
	} else if rate > 0 && rate != s.rate {
		log.Printf("[WARN] listener: server audio rate %d Hz, playing at %d Hz", rate, s.rate)
	}

	changed := st.Freq != s.freq || mode != s.mode
	s.freq, s.mode = st.Freq, mode
	s.sched.SetMode(mode)
	if s.margin == nil {
		s.sched.SetMargin(squelch.DefaultMargin(mode))
	}
	var now time.Duration
	if s.sink != nil {
		now = s.sink.Now()
	}
	if changed || (st.SavedNoiseFloor != nil && *st.SavedNoiseFloor > 0) {
		s.sched.Reset(st.SavedNoiseFloor, now)
	} else {
		s.sched.Resync(now)
	}
	log.Printf("[INFO] listener: %.3f MHz %s, %s", float64(st.Freq)/1e6, mode, st.BWInfo)
	return nil
}

// HandleFrame runs a binary frame through the squelch and schedules it if
// audible.
func (s *Session) HandleFrame(b []byte) (squelch.Decision, error) {
	if s.sink == nil {
		return squelch.Decision{}, nil
	}
	f, err := wire.DecodeFrame(b)
	if err != nil {
		return squelch.Decision{}, err
	}
	pcm := wire.PCM(b)
	d := s.sched.Evaluate(f.RSSI, s.sink.Duration(len(pcm)), s.sink.Now())
	s.frames++
	if d.Audible {
		s.audible++
		s.sink.Schedule(d.Start, pcm)
	}
	return d, nil
}

// Bookmarks returns the server's bookmark list as last received.
func (s *Session) Bookmarks() []wire.Bookmark {
	return s.bookmarks
}

// Stats returns received and audible frame counts.
func (s *Session) Stats() (frames, audible int) {
	return s.frames, s.audible
}

// SaveSquelch builds the command persisting the current floor, if there is
// one to save.
func (s *Session) SaveSquelch() (wire.Command, bool) {
	floor, ok := s.sched.Floor()
	if !ok || s.freq == 0 {
		return wire.Command{}, false
	}
	return wire.Command{Type: wire.TypeSaveSquelch, Freq: int64(s.freq), Floor: floor}, true
}

// Tune validates a retune request and builds its command.
func Tune(freq int64, mode, password string) (wire.Command, error) {
	_, m, err := radio.ValidateTune(freq, mode)
	if err != nil {
		return wire.Command{}, err
	}
	return wire.Command{Type: wire.TypeAuthTune, Freq: freq, Mode: m.String(), Password: password}, nil
}

// AddBookmark builds an add_bookmark command. Folders carry no tuning.
// An empty parent places the entry at the top level.
func AddBookmark(title string, freqMHz float64, mode string, folder bool, parent string) (wire.Command, error) {
	bm := wire.Bookmark{Title: title, IsFolder: folder}
	if parent != "" {
		bm.ParentID = &parent
	}
	if !folder {
		if _, _, err := radio.ValidateTune(int64(math.Round(freqMHz*1e6)), mode); err != nil {
			return wire.Command{}, err
		}
		bm.Freq, bm.Mode = freqMHz, strings.ToUpper(mode)
	}
	return wire.Command{Type: wire.TypeAddBookmark, Bookmark: &bm}, nil
}
