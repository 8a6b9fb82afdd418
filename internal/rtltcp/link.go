// Package rtltcp keeps a session with an rtl_tcp server alive: it
// reconnects on failure, restores the tuning and streams the raw
// interleaved unsigned 8-bit I/Q it receives.
package rtltcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	rtl "github.com/bemasher/rtltcp"
)

// ErrNotConnected is returned by command writes while no session is open.
var ErrNotConnected = errors.New("rtltcp: not connected")

// DongleInfo is the header the server sends on connect.
type DongleInfo = rtl.DongleInfo

const (
	defaultReconnectDelay = 5 * time.Second
	defaultReadSize       = 16384
)

// Config describes the tuner endpoint and its setup.
type Config struct {
	Addr           string
	SampleRate     uint32
	ReconnectDelay time.Duration
	ReadSize       int
	// MinRead is a hint for the minimum number of bytes per socket read.
	MinRead int

	// Frequency returns the frequency to restore after (re)connecting.
	Frequency func() uint32
	// OnConnect runs after the setup commands have been written.
	OnConnect func(DongleInfo)
}

// Link keeps a session with an rtl_tcp server alive and streams its
// samples. Commands may be written from any goroutine.
type Link struct {
	cfg Config

	mu  sync.Mutex
	sdr *rtl.SDR
}

// New creates a Link. Nothing is dialed until Run.
func New(cfg Config) *Link {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = defaultReadSize
	}
	return &Link{cfg: cfg}
}

// Run connects, streams chunks to out and reconnects after a fixed delay on
// any error until ctx is cancelled. Each chunk is a fresh slice. A send on
// out blocks until the consumer takes it.
func (l *Link) Run(ctx context.Context, out chan<- []byte) error {
	for {
		err := l.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[WARN] rtltcp: %v; reconnecting in %s", err, l.cfg.ReconnectDelay)

		t := time.NewTimer(l.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// connect dials and reads the dongle header. The library call cannot be
// cancelled, so it runs aside and a late success is closed.
func connect(ctx context.Context, addr string) (*rtl.SDR, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	sdr := new(rtl.SDR)
	done := make(chan error, 1)
	go func() { done <- sdr.Connect(tcpAddr) }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return sdr, nil
	case <-ctx.Done():
		go func() {
			if <-done == nil {
				sdr.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (l *Link) session(ctx context.Context, out chan<- []byte) error {
	sdr, err := connect(ctx, l.cfg.Addr)
	if err != nil {
		return err
	}
	defer l.drop(sdr)

	stop := context.AfterFunc(ctx, func() { sdr.Close() })
	defer stop()

	if err := tuneSocket(sdr.TCPConn, l.cfg.MinRead); err != nil {
		log.Printf("[DEBUG] rtltcp: socket options: %v", err)
	}
	log.Printf("[INFO] rtltcp: connected to %s (%v, %d gains)", l.cfg.Addr, sdr.Info.Tuner, sdr.Info.GainCount)

	l.mu.Lock()
	l.sdr = sdr
	l.mu.Unlock()

	if err := l.setup(); err != nil {
		return err
	}
	if l.cfg.OnConnect != nil {
		l.cfg.OnConnect(sdr.Info)
	}

	for {
		buf := make([]byte, l.cfg.ReadSize)
		n, err := sdr.Read(buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
}

func (l *Link) setup() error {
	if l.cfg.Frequency != nil {
		if err := l.SetFrequency(l.cfg.Frequency()); err != nil {
			return err
		}
	}
	if err := l.SetSampleRate(l.cfg.SampleRate); err != nil {
		return err
	}
	return l.SetAutoGain()
}

func (l *Link) drop(sdr *rtl.SDR) {
	l.mu.Lock()
	if l.sdr == sdr {
		l.sdr = nil
	}
	l.mu.Unlock()
	sdr.Close()
}

// Connected reports whether a session is open.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sdr != nil
}

// send runs one command write with the session held, so records from
// different goroutines never interleave.
func (l *Link) send(name string, param uint32, write func(*rtl.SDR) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sdr == nil {
		return ErrNotConnected
	}
	if err := write(l.sdr); err != nil {
		return fmt.Errorf("rtltcp: %s(%d): %w", name, param, err)
	}
	return nil
}

// SetFrequency tunes the dongle to hz.
func (l *Link) SetFrequency(hz uint32) error {
	return l.send("set-frequency", hz, func(s *rtl.SDR) error { return s.SetCenterFreq(hz) })
}

// SetSampleRate sets the native I/Q rate.
func (l *Link) SetSampleRate(hz uint32) error {
	return l.send("set-sample-rate", hz, func(s *rtl.SDR) error { return s.SetSampleRate(hz) })
}

// SetAutoGain enables tuner automatic gain control.
func (l *Link) SetAutoGain() error {
	return l.send("set-gain-mode", 0, func(s *rtl.SDR) error { return s.SetGainMode(false) })
}
