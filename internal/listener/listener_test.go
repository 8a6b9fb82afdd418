package listener

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdr-monitor/internal/dsp"
	"sdr-monitor/internal/radio"
	"sdr-monitor/internal/squelch"
	"sdr-monitor/internal/wire"
)

type scheduled struct {
	start time.Duration
	pcm   []int16
}

type fakeSink struct {
	rate  int
	now   time.Duration
	queue []scheduled
}

func (f *fakeSink) Now() time.Duration { return f.now }
func (f *fakeSink) Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(f.rate)
}
func (f *fakeSink) Schedule(start time.Duration, pcm []int16) int {
	f.queue = append(f.queue, scheduled{start, pcm})
	return len(pcm)
}

func newSession(t *testing.T, margin *float64) (*Session, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	s := New(func(rate int) (Sink, error) {
		sink.rate = rate
		return sink, nil
	}, margin)
	return s, sink
}

func status(t *testing.T, freq uint32, mode string, saved *float64) []byte {
	t.Helper()
	b, err := json.Marshal(wire.Status{
		Type:            wire.TypeStatusUpdate,
		Freq:            freq,
		Mode:            mode,
		SavedNoiseFloor: saved,
		AudioRate:       1000,
	})
	require.NoError(t, err)
	return b
}

func TestStatusOpensSinkAndResets(t *testing.T) {
	s, sink := newSession(t, nil)
	saved := 25.0
	require.NoError(t, s.Handle(status(t, 120_500_000, "AM", &saved)))

	assert.Equal(t, 1000, sink.rate)
	assert.Equal(t, uint32(120_500_000), s.Frequency())
	assert.Equal(t, dsp.AM, s.Mode())
	assert.Equal(t, squelch.DefaultMarginAM, s.Scheduler().Margin())
	floor, ok := s.Scheduler().Floor()
	assert.True(t, ok)
	assert.Equal(t, 25.0, floor)

	sink.now = 2 * time.Second
	require.NoError(t, s.Handle(status(t, 93_500_000, "FM", nil)))
	assert.Equal(t, squelch.DefaultMarginFM, s.Scheduler().Margin())
	_, ok = s.Scheduler().Floor()
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second+squelch.RetuneLead, s.Scheduler().Cursor())
}

func TestRepeatedStatusKeepsFloor(t *testing.T) {
	s, sink := newSession(t, nil)
	require.NoError(t, s.Handle(status(t, 93_500_000, "FM", nil)))
	sink.now = time.Second
	_, err := s.HandleFrame(wire.EncodeFrame(nil, 35, []int16{1}))
	require.NoError(t, err)

	sink.now = 3 * time.Second
	require.NoError(t, s.Handle(status(t, 93_500_000, "FM", nil)))
	floor, ok := s.Scheduler().Floor()
	require.True(t, ok)
	assert.Equal(t, 35.0, floor)
	assert.Equal(t, 3*time.Second+squelch.RetuneLead, s.Scheduler().Cursor())

	saved := 22.0
	require.NoError(t, s.Handle(status(t, 93_500_000, "FM", &saved)))
	floor, _ = s.Scheduler().Floor()
	assert.Equal(t, 22.0, floor)

	require.NoError(t, s.Handle(status(t, 93_500_000, "AM", nil)))
	_, ok = s.Scheduler().Floor()
	assert.False(t, ok)
}

func TestCustomMarginSurvivesStatus(t *testing.T) {
	m := 70.0
	s, _ := newSession(t, &m)
	require.NoError(t, s.Handle(status(t, 120_500_000, "AM", nil)))
	assert.Equal(t, squelch.MaxMargin, s.Scheduler().Margin())
}

func TestFramesScheduledWhenOpen(t *testing.T) {
	s, sink := newSession(t, nil)
	floor := 30.0
	require.NoError(t, s.Handle(status(t, 93_500_000, "FM", &floor)))
	s.Scheduler().SetMargin(10)
	sink.now = time.Second

	quiet := wire.EncodeFrame(nil, 20, []int16{1, 2, 3, 4})
	d, err := s.HandleFrame(quiet)
	require.NoError(t, err)
	assert.False(t, d.Audible)
	assert.Empty(t, sink.queue)

	loud := wire.EncodeFrame(nil, 60, []int16{5, 6, 7, 8})
	d, err = s.HandleFrame(loud)
	require.NoError(t, err)
	require.True(t, d.Audible)
	require.Len(t, sink.queue, 1)
	// the cursor was pinned to now while closed, so it is not behind
	assert.Equal(t, time.Second, sink.queue[0].start)
	assert.Equal(t, []int16{5, 6, 7, 8}, sink.queue[0].pcm)

	d, err = s.HandleFrame(loud)
	require.NoError(t, err)
	assert.Equal(t, time.Second+4*time.Millisecond, d.Start)

	frames, audible := s.Stats()
	assert.Equal(t, 3, frames)
	assert.Equal(t, 2, audible)
}

func TestFrameBeforeStatusIsIgnored(t *testing.T) {
	s, _ := newSession(t, nil)
	_, err := s.HandleFrame(wire.EncodeFrame(nil, 60, []int16{1}))
	assert.NoError(t, err)
	frames, _ := s.Stats()
	assert.Zero(t, frames)
}

func TestShortFrame(t *testing.T) {
	s, _ := newSession(t, nil)
	require.NoError(t, s.Handle(status(t, 93_500_000, "FM", nil)))
	_, err := s.HandleFrame([]byte{1})
	assert.True(t, errors.Is(err, wire.ErrShortFrame))
}

func TestSaveSquelch(t *testing.T) {
	s, _ := newSession(t, nil)
	_, ok := s.SaveSquelch()
	assert.False(t, ok)

	require.NoError(t, s.Handle(status(t, 120_500_000, "AM", nil)))
	_, err := s.HandleFrame(wire.EncodeFrame(nil, 31.5, []int16{0}))
	require.NoError(t, err)

	cmd, ok := s.SaveSquelch()
	require.True(t, ok)
	assert.Equal(t, wire.TypeSaveSquelch, cmd.Type)
	assert.Equal(t, int64(120_500_000), cmd.Freq)
	assert.Equal(t, 31.5, cmd.Floor)
}

func TestTune(t *testing.T) {
	cmd, err := Tune(120_500_000, "am", "pw")
	require.NoError(t, err)
	assert.Equal(t, wire.Command{Type: wire.TypeAuthTune, Freq: 120_500_000, Mode: "AM", Password: "pw"}, cmd)

	_, err = Tune(30_000_000, "AM", "pw")
	assert.True(t, errors.Is(err, radio.ErrFrequencyRange))
}

func TestHandleIgnoresOtherTypes(t *testing.T) {
	s, _ := newSession(t, nil)
	assert.NoError(t, s.Handle([]byte(`{"type":"recordings","data":[{"name":"a.wav","size":3}]}`)))
	assert.NoError(t, s.Handle([]byte(`{"type":"recording_status","recording":true,"filename":"a.wav"}`)))
	assert.NoError(t, s.Handle([]byte(`{"type":"something_else"}`)))
	assert.Error(t, s.Handle([]byte(`not json`)))
}

func TestHandleBookmarks(t *testing.T) {
	s, _ := newSession(t, nil)
	assert.Empty(t, s.Bookmarks())
	require.NoError(t, s.Handle([]byte(`{"type":"bookmarks","data":[{"id":"1","title":"Air","isFolder":true,"parentId":null},{"id":"2","title":"Tower","freq":118.1,"mode":"AM","isFolder":false,"parentId":"1"}]}`)))
	require.Len(t, s.Bookmarks(), 2)
	assert.Equal(t, "Tower", s.Bookmarks()[1].Title)
	require.NotNil(t, s.Bookmarks()[1].ParentID)
	assert.Equal(t, "1", *s.Bookmarks()[1].ParentID)
}

func TestAddBookmark(t *testing.T) {
	cmd, err := AddBookmark("Tower", 118.1, "am", false, "17")
	require.NoError(t, err)
	assert.Equal(t, wire.TypeAddBookmark, cmd.Type)
	require.NotNil(t, cmd.Bookmark)
	assert.Equal(t, 118.1, cmd.Bookmark.Freq)
	assert.Equal(t, "AM", cmd.Bookmark.Mode)
	require.NotNil(t, cmd.Bookmark.ParentID)
	assert.Equal(t, "17", *cmd.Bookmark.ParentID)

	cmd, err = AddBookmark("Airband", 0, "", true, "")
	require.NoError(t, err)
	assert.True(t, cmd.Bookmark.IsFolder)
	assert.Nil(t, cmd.Bookmark.ParentID)

	_, err = AddBookmark("Shortwave", 7.2, "AM", false, "")
	assert.True(t, errors.Is(err, radio.ErrFrequencyRange))
}
