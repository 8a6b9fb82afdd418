// Package playout plays scheduled PCM blocks through the audio device. Its
// clock is the number of samples the device has consumed, so scheduling
// decisions line up with what is actually heard.
package playout

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"sdr-monitor/internal/ringbuffer"
)

// Timeline is an io.Reader of little-endian int16 mono PCM. Blocks are
// placed at absolute times; gaps are filled with silence and an empty
// buffer reads as silence.
type Timeline struct {
	rate int
	rb   *ringbuffer.RingBuffer

	mu       sync.Mutex
	consumed int64
	end      int64
	scratch  []int16
}

// NewTimeline buffers up to capacity of audio at rate.
func NewTimeline(rate int, capacity time.Duration) *Timeline {
	return &Timeline{
		rate: rate,
		rb:   ringbuffer.New(int(int64(rate) * int64(capacity) / int64(time.Second))),
	}
}

// Rate returns the sample rate.
func (t *Timeline) Rate() int {
	return t.rate
}

// Now is the playback position.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toDuration(t.consumed)
}

// Buffered is how far queued audio extends past Now.
func (t *Timeline) Buffered() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toDuration(t.end - t.consumed)
}

// Duration of n samples.
func (t *Timeline) Duration(n int) time.Duration {
	return t.toDuration(int64(n))
}

func (t *Timeline) toDuration(n int64) time.Duration {
	return time.Duration(n * int64(time.Second) / int64(t.rate))
}

// Schedule queues pcm to start playing at start. A start inside already
// queued audio appends directly after it. It returns the number of samples
// accepted.
func (t *Timeline) Schedule(start time.Duration, pcm []int16) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := int64(start) * int64(t.rate) / int64(time.Second)
	if gap := at - t.end; gap > 0 {
		t.end += int64(t.rb.WriteZeros(int(gap)))
	}
	n := t.rb.Write(pcm)
	t.end += int64(n)
	return n
}

// Flush drops everything queued.
func (t *Timeline) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rb.Reset()
	t.end = t.consumed
}

// Read implements io.Reader for the audio device.
func (t *Timeline) Read(p []byte) (int, error) {
	samples := len(p) / 2
	if samples == 0 {
		return 0, nil
	}

	t.mu.Lock()
	if cap(t.scratch) < samples {
		t.scratch = make([]int16, samples)
	}
	buf := t.scratch[:samples]
	n := t.rb.Read(buf)
	clear(buf[n:])
	t.consumed += int64(samples)
	if t.end < t.consumed {
		t.end = t.consumed
	}
	for i, s := range buf {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(s))
	}
	t.mu.Unlock()
	return 2 * samples, nil
}

// Device owns the oto context and the player reading from a Timeline.
type Device struct {
	ctx    *oto.Context
	player *oto.Player
}

// Open starts playback of tl on the default output.
func Open(tl *Timeline) (*Device, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   tl.Rate(),
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	player := ctx.NewPlayer(tl)
	player.Play()
	return &Device{ctx: ctx, player: player}, nil
}

// Close stops playback.
func (d *Device) Close() error {
	return d.player.Close()
}
