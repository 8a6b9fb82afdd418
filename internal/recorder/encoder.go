package recorder

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"github.com/segmentio/parquet-go"
)

// Encoder is a lossless sink for mono 16-bit PCM. The file is complete
// once Close returns.
type Encoder interface {
	Write(pcm []int16) error
	Close() error
}

// EncoderFunc opens an Encoder at path.
type EncoderFunc func(path string, sampleRate int) (Encoder, error)

// Format pairs a file extension with the encoder that writes it.
type Format struct {
	Name string
	Ext  string
	Open EncoderFunc
}

var (
	FLAC = Format{Name: "flac", Ext: ".flac", Open: NewFLACEncoder}
	WAV  = Format{Name: "wav", Ext: ".wav", Open: NewWAVEncoder}
)

// ParseFormat looks a format up by name, case-insensitively.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FLAC.Name:
		return FLAC, nil
	case WAV.Name:
		return WAV, nil
	}
	return Format{}, fmt.Errorf("recorder: unknown format %q", name)
}

// flacBlockSize is the number of samples per FLAC frame. Only the last
// frame of a file may be shorter.
const flacBlockSize = 4096

// FLACEncoder writes mono 16-bit FLAC, one frame per flacBlockSize samples.
type FLACEncoder struct {
	f       *os.File
	enc     *flac.Encoder
	rate    uint32
	pending []int32
}

// NewFLACEncoder creates path and writes the FLAC stream header.
func NewFLACEncoder(path string, sampleRate int) (Encoder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("recorder: flac: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &FLACEncoder{
		f:       f,
		enc:     enc,
		rate:    uint32(sampleRate),
		pending: make([]int32, 0, flacBlockSize),
	}, nil
}

func (e *FLACEncoder) Write(pcm []int16) error {
	for _, s := range pcm {
		e.pending = append(e.pending, int32(s))
		if len(e.pending) == flacBlockSize {
			if err := e.writeFrame(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *FLACEncoder) writeFrame() error {
	samples := make([]int32, len(e.pending))
	copy(samples, e.pending)
	e.pending = e.pending[:0]

	fr := &frame.Frame{
		Header: frame.Header{
			HasFixedBlockSize: true,
			BlockSize:         uint16(len(samples)),
			SampleRate:        e.rate,
			Channels:          frame.ChannelsMono,
			BitsPerSample:     16,
		},
		Subframes: []*frame.Subframe{{
			// prediction analysis picks the actual predictor
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(samples),
		}},
	}
	if err := e.enc.WriteFrame(fr); err != nil {
		return fmt.Errorf("recorder: flac frame: %w", err)
	}
	return nil
}

// Close writes the short final frame, updates the stream info and closes
// the file.
func (e *FLACEncoder) Close() error {
	var err error
	if len(e.pending) > 0 {
		err = e.writeFrame()
	}
	if cerr := e.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := e.f.Close(); err == nil && !errors.Is(cerr, os.ErrClosed) {
		err = cerr
	}
	return err
}

// WAVEncoder writes PCM WAV files.
type WAVEncoder struct {
	f   *os.File
	enc *wav.Encoder
	buf *audio.IntBuffer
}

// NewWAVEncoder creates path and writes a mono 16-bit header at sampleRate.
func NewWAVEncoder(path string, sampleRate int) (Encoder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &WAVEncoder{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (w *WAVEncoder) Write(pcm []int16) error {
	if cap(w.buf.Data) < len(pcm) {
		w.buf.Data = make([]int, len(pcm))
	}
	w.buf.Data = w.buf.Data[:len(pcm)]
	for i, s := range pcm {
		w.buf.Data[i] = int(s)
	}
	return w.enc.Write(w.buf)
}

// Close finalizes the header sizes and closes the file.
func (w *WAVEncoder) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// RSSIRow is one frame of signal telemetry.
type RSSIRow struct {
	UnixMillis int64   `parquet:"unix_ms"`
	RSSI       float64 `parquet:"rssi"`
	Samples    int32   `parquet:"samples"`
}

// RSSIWriter records per-frame signal strength next to a recording.
type RSSIWriter struct {
	f      *os.File
	writer *parquet.GenericWriter[RSSIRow]
	row    [1]RSSIRow
}

// NewRSSIWriter creates a parquet file at path. meta is stored as
// key/value file metadata.
func NewRSSIWriter(path string, meta map[string]string) (*RSSIWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	opts := make([]parquet.WriterOption, 0, len(meta))
	for k, v := range meta {
		opts = append(opts, parquet.KeyValueMetadata(k, v))
	}
	return &RSSIWriter{f: f, writer: parquet.NewGenericWriter[RSSIRow](f, opts...)}, nil
}

// Write appends one row.
func (r *RSSIWriter) Write(at time.Time, rssi float64, samples int) error {
	r.row[0] = RSSIRow{UnixMillis: at.UnixMilli(), RSSI: rssi, Samples: int32(samples)}
	if _, err := r.writer.Write(r.row[:]); err != nil {
		return fmt.Errorf("recorder: telemetry: %w", err)
	}
	return nil
}

func (r *RSSIWriter) Close() error {
	if err := r.writer.Close(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
