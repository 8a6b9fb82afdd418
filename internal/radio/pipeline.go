package radio

import (
	"context"
	"log"
	"time"

	"sdr-monitor/internal/dsp"
	"sdr-monitor/internal/wire"
)

// Output is everything produced from one tuner chunk.
type Output struct {
	RSSI    float64
	Samples []float64
	PCM     []int16
	// Payload is the encoded binary frame. It is never mutated after
	// emission and may be shared between listeners.
	Payload []byte
}

// Sink receives pipeline output. Implementations must not block.
type Sink interface {
	WriteFrame(Output)
}

// StatusFunc is called after every retune with the new session.
type StatusFunc func(Session)

type retuneRequest struct {
	freq uint32
	mode dsp.Mode
}

// Pipeline owns all filter and demodulator state. Chunks and retunes are
// serialized through Run, so a retune always completes its reset before
// the next chunk is processed.
type Pipeline struct {
	ctrl *Controller

	filter *dsp.ChannelFilter
	demod  *dsp.Demodulator
	dec    *dsp.Decimator
	cond   *dsp.AudioConditioner
	blocks []dsp.Block

	sinks    []Sink
	onStatus StatusFunc
	retunes  chan retuneRequest
	now      func() time.Time
}

// NewPipeline builds the DSP chain for the controller's session.
func NewPipeline(ctrl *Controller, onStatus StatusFunc, sinks ...Sink) *Pipeline {
	s := ctrl.Snapshot()
	filter := dsp.NewChannelFilter(float64(s.SampleRate), s.Mode)
	demod := dsp.NewDemodulator(s.Mode)
	return &Pipeline{
		ctrl:     ctrl,
		filter:   filter,
		demod:    demod,
		dec:      dsp.NewDecimator(s.Decimation, filter, demod),
		cond:     dsp.NewAudioConditioner(s.Mode, s.AudioRate()),
		sinks:    sinks,
		onStatus: onStatus,
		retunes:  make(chan retuneRequest, 8),
		now:      time.Now,
	}
}

// Controller returns the retune state machine.
func (p *Pipeline) Controller() *Controller {
	return p.ctrl
}

// Snapshot returns the current session.
func (p *Pipeline) Snapshot() Session {
	return p.ctrl.Snapshot()
}

// Run processes chunks and retune requests until ctx is done or chunks is
// closed.
func (p *Pipeline) Run(ctx context.Context, chunks <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-p.retunes:
			p.ApplyRetune(req.freq, req.mode, p.now())
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			p.Process(chunk, p.now())
		}
	}
}

// Retune queues a retune for the Run loop. Inputs are validated here so
// invalid requests never touch pipeline state.
func (p *Pipeline) Retune(ctx context.Context, freq int64, mode string) error {
	f, m, err := ValidateTune(freq, mode)
	if err != nil {
		return err
	}
	select {
	case p.retunes <- retuneRequest{freq: f, mode: m}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyRetune resets every stage, reconfigures the channel bandwidth,
// commands the tuner and publishes the new status. Must only be called from
// the goroutine that calls Process.
func (p *Pipeline) ApplyRetune(freq uint32, mode dsp.Mode, now time.Time) {
	log.Printf("[INFO] radio: tuning %d Hz (%s)", freq, mode)

	p.dec.Reset()
	p.filter.Reset()
	p.filter.SetBandwidth(mode)
	p.demod.SetMode(mode)
	p.cond.SetMode(mode)

	s := p.ctrl.Retune(freq, mode, now)
	if p.onStatus != nil {
		p.onStatus(s)
	}
}

// Process runs one tuner chunk through the chain. Chunks arriving during
// the settle window are discarded along with any carried bytes. It returns
// nil when no block completed.
func (p *Pipeline) Process(chunk []byte, now time.Time) *Output {
	if p.ctrl.Tuning(now) {
		p.dec.Reset()
		return nil
	}

	p.blocks = p.dec.Push(chunk, p.blocks[:0])
	if len(p.blocks) == 0 {
		return nil
	}

	out := &Output{
		Samples: make([]float64, len(p.blocks)),
		PCM:     make([]int16, len(p.blocks)),
	}
	var magSum float64
	for i, b := range p.blocks {
		s := p.cond.Process(b.Value, b.Magnitude)
		out.Samples[i] = s
		out.PCM[i] = wire.Quantize(s)
		magSum += b.Magnitude
	}
	out.RSSI = wire.RSSIPercent(magSum / float64(len(p.blocks)))
	out.Payload = wire.EncodeFrame(make([]byte, 0, 2*(len(out.PCM)+1)), out.RSSI, out.PCM)

	for _, s := range p.sinks {
		s.WriteFrame(*out)
	}
	return out
}
