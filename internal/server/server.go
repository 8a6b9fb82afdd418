// Package server exposes the monitor over HTTP: the /ws listener endpoint
// carrying binary audio frames and JSON messages, and recording downloads.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"sdr-monitor/internal/dsp"
	"sdr-monitor/internal/hub"
	"sdr-monitor/internal/radio"
	"sdr-monitor/internal/recorder"
	"sdr-monitor/internal/store"
	"sdr-monitor/internal/wire"
)

const maxMessageSize = 4096

// Radio is the part of the pipeline listeners can see and steer.
type Radio interface {
	Snapshot() radio.Session
	Retune(ctx context.Context, freq int64, mode string) error
}

// Authorizer gates retune requests.
type Authorizer interface {
	Authorize(password string) bool
}

// Password authorizes requests carrying exactly this password.
type Password string

func (p Password) Authorize(password string) bool {
	return subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
}

// Options wires a Server to the rest of the monitor.
type Options struct {
	Hub        *hub.Hub
	Recorder   *recorder.Recorder
	Floors     *store.SquelchStore
	Recordings *store.Recordings
	Bookmarks  *store.Bookmarks
	Auth       Authorizer
}

// Server handles listener connections and commands. It is also the
// radio.Sink that puts frames on the hub.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	radio Radio
}

// New creates a Server. SetRadio must be called before serving.
func New(opts Options) *Server {
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
}

// SetRadio attaches the pipeline.
func (s *Server) SetRadio(r Radio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.radio = r
}

func (s *Server) getRadio() Radio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.radio
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /download/{name}", s.serveDownload)
	return mux
}

// WriteFrame broadcasts a pipeline frame to every listener.
func (s *Server) WriteFrame(o radio.Output) {
	s.opts.Hub.BroadcastBinary(o.Payload)
}

// Status builds the status_update message for sess.
func (s *Server) Status(sess radio.Session) wire.Status {
	st := wire.Status{
		Type:      wire.TypeStatusUpdate,
		Freq:      sess.Frequency,
		Mode:      sess.Mode.String(),
		BWInfo:    dsp.BandwidthInfo(sess.Mode),
		AudioRate: sess.AudioRate(),
	}
	if s.opts.Floors != nil {
		if f, ok := s.opts.Floors.Get(sess.Frequency); ok {
			st.SavedNoiseFloor = &f
		}
	}
	return st
}

// PublishStatus broadcasts the status for sess. It is the pipeline's
// retune callback.
func (s *Server) PublishStatus(sess radio.Session) {
	if err := s.opts.Hub.BroadcastJSON(s.Status(sess)); err != nil {
		log.Printf("[ERROR] server: status: %v", err)
	}
}

func (s *Server) recordingList() wire.RecordingList {
	l := wire.RecordingList{Type: wire.TypeRecordings, Data: []wire.Recording{}}
	if s.opts.Recordings != nil {
		l.Data = s.opts.Recordings.List()
	}
	return l
}

// PublishRecordings broadcasts the recordings list.
func (s *Server) PublishRecordings() {
	if err := s.opts.Hub.BroadcastJSON(s.recordingList()); err != nil {
		log.Printf("[ERROR] server: recordings: %v", err)
	}
}

func (s *Server) bookmarkList() wire.BookmarkList {
	l := wire.BookmarkList{Type: wire.TypeBookmarks, Data: []wire.Bookmark{}}
	if s.opts.Bookmarks != nil {
		l.Data = s.opts.Bookmarks.List()
	}
	return l
}

// PublishBookmarks broadcasts the bookmark list.
func (s *Server) PublishBookmarks() {
	if err := s.opts.Hub.BroadcastJSON(s.bookmarkList()); err != nil {
		log.Printf("[ERROR] server: bookmarks: %v", err)
	}
}

// RecordingFailed reports a recorder failure to listeners.
func (s *Server) RecordingFailed(name string, err error) {
	s.opts.Hub.BroadcastJSON(wire.RecordingStatus{
		Type:     wire.TypeRecordingStatus,
		Filename: name,
		Error:    err.Error(),
	})
	s.PublishRecordings()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] server: upgrade: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := s.opts.Hub.Register(conn)
	defer s.opts.Hub.Unregister(c)

	s.greet(c)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		s.dispatch(r.Context(), msg)
	}
}

func (s *Server) greet(c *hub.Client) {
	if rd := s.getRadio(); rd != nil {
		c.SendJSON(s.Status(rd.Snapshot()))
	}
	c.SendJSON(s.bookmarkList())
	c.SendJSON(s.recordingList())
	if s.opts.Recorder != nil && s.opts.Recorder.IsRecording() {
		c.SendJSON(wire.RecordingStatus{
			Type:      wire.TypeRecordingStatus,
			Recording: true,
			Filename:  s.opts.Recorder.Current(),
		})
	}
}

func (s *Server) dispatch(ctx context.Context, msg []byte) {
	cmd, err := wire.ParseCommand(msg)
	if err != nil {
		log.Printf("[DEBUG] server: %v", err)
		return
	}

	switch cmd.Type {
	case wire.TypeAuthTune:
		s.authTune(ctx, cmd)
	case wire.TypeSaveSquelch:
		s.saveSquelch(cmd)
	case wire.TypeStartRecording:
		s.startRecording()
	case wire.TypeStopRecording:
		s.stopRecording()
	case wire.TypeDeleteRecording:
		s.deleteRecording(cmd.Filename)
	case wire.TypeAddBookmark, wire.TypeEditBookmark, wire.TypeDeleteBookmark:
		s.changeBookmarks(cmd)
	default:
		log.Printf("[DEBUG] server: unknown command %q", cmd.Type)
	}
}

func (s *Server) authTune(ctx context.Context, cmd wire.Command) {
	if s.opts.Auth == nil || !s.opts.Auth.Authorize(cmd.Password) {
		log.Printf("[WARN] server: retune to %d rejected: bad password", cmd.Freq)
		return
	}
	rd := s.getRadio()
	if rd == nil {
		return
	}
	if err := rd.Retune(ctx, cmd.Freq, cmd.Mode); err != nil {
		log.Printf("[WARN] server: retune: %v", err)
	}
}

func (s *Server) saveSquelch(cmd wire.Command) {
	if s.opts.Floors == nil {
		return
	}
	if cmd.Freq < int64(radio.MinFrequency) || cmd.Freq > int64(radio.MaxFrequency) ||
		cmd.Floor < 0 || cmd.Floor > 100 {
		log.Printf("[WARN] server: save_squelch: invalid %d Hz floor %.2f", cmd.Freq, cmd.Floor)
		return
	}
	if err := s.opts.Floors.Put(uint32(cmd.Freq), cmd.Floor); err != nil {
		log.Printf("[ERROR] server: save_squelch: %v", err)
	}
}

func (s *Server) startRecording() {
	rd := s.getRadio()
	if s.opts.Recorder == nil || rd == nil {
		return
	}
	sess := rd.Snapshot()
	name, err := s.opts.Recorder.Start(sess.Frequency, sess.Mode)
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording):
		return
	case err != nil:
		log.Printf("[ERROR] server: %v", err)
		s.opts.Hub.BroadcastJSON(wire.RecordingStatus{Type: wire.TypeRecordingStatus, Error: err.Error()})
		return
	}
	s.opts.Hub.BroadcastJSON(wire.RecordingStatus{
		Type:      wire.TypeRecordingStatus,
		Recording: true,
		Filename:  name,
	})
}

func (s *Server) stopRecording() {
	if s.opts.Recorder == nil {
		return
	}
	name, err := s.opts.Recorder.Stop()
	if errors.Is(err, recorder.ErrNotRecording) {
		return
	}
	st := wire.RecordingStatus{Type: wire.TypeRecordingStatus, Filename: name}
	if err != nil {
		log.Printf("[ERROR] server: %v", err)
		st.Error = err.Error()
	}
	s.opts.Hub.BroadcastJSON(st)
	s.PublishRecordings()
}

func (s *Server) deleteRecording(name string) {
	if s.opts.Recordings == nil {
		return
	}
	if s.opts.Recorder != nil && name != "" && name == s.opts.Recorder.Current() {
		log.Printf("[WARN] server: refusing to delete active recording %s", name)
		return
	}
	if err := s.opts.Recordings.Delete(name); err != nil {
		log.Printf("[WARN] server: delete: %v", err)
	}
	s.PublishRecordings()
}

func (s *Server) changeBookmarks(cmd wire.Command) {
	if s.opts.Bookmarks == nil {
		return
	}
	var err error
	switch {
	case cmd.Type == wire.TypeDeleteBookmark:
		_, err = s.opts.Bookmarks.Delete(cmd.ID)
	case cmd.Bookmark == nil:
		err = fmt.Errorf("%s without data", cmd.Type)
	case cmd.Type == wire.TypeAddBookmark:
		_, err = s.opts.Bookmarks.Add(*cmd.Bookmark)
	default:
		err = s.opts.Bookmarks.Edit(*cmd.Bookmark)
	}
	if err != nil {
		log.Printf("[WARN] server: %s: %v", cmd.Type, err)
		return
	}
	s.PublishBookmarks()
}

func (s *Server) serveDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.opts.Recordings == nil {
		http.NotFound(w, r)
		return
	}
	path, err := s.opts.Recordings.Path(name)
	if err != nil {
		http.Error(w, "invalid name", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", store.ContentType(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}
