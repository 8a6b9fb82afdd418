package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"sdr-monitor/internal/radio"
)

// EnvFile names the environment variable consulted when no config path is given.
const EnvFile = "SDR_MONITOR_CONFIG"

var (
	ErrInvalidFrequency = errors.New("config: invalid frequency")
	ErrInvalidMode      = errors.New("config: invalid mode")
)

type Tuner struct {
	Host           string
	Port           int
	SampleRate     int
	ReconnectDelay time.Duration
	ReadBuffer     int
}

type Audio struct {
	TargetRate int
}

type Radio struct {
	Frequency  string
	Mode       string
	SettleTime time.Duration
}

type Web struct {
	Listen    string
	Password  string
	SendQueue int
}

type Storage struct {
	SquelchFile     string
	BookmarksFile   string
	RecordingsPath  string
	RecordingFormat string
}

type Log struct {
	Level string
}

// Config holds all the configuration parameters for the monitor. Section
// and key names map to ini as TitleUnderscore ([tuner] sample_rate).
type Config struct {
	Tuner   Tuner
	Audio   Audio
	Radio   Radio
	Web     Web
	Storage Storage
	Log     Log
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		Tuner: Tuner{
			Host:           "127.0.0.1",
			Port:           1234,
			SampleRate:     250_000,
			ReconnectDelay: 5 * time.Second,
			ReadBuffer:     64 * 1024,
		},
		Audio: Audio{TargetRate: 16_000},
		Radio: Radio{
			Frequency:  "93.5M",
			Mode:       "FM",
			SettleTime: 800 * time.Millisecond,
		},
		Web: Web{
			Listen:    "0.0.0.0:3000",
			Password:  "admin",
			SendQueue: 64,
		},
		Storage: Storage{
			SquelchFile:     "squelch_data.json",
			BookmarksFile:   "bookmarks.json",
			RecordingsPath:  "recordings",
			RecordingFormat: "flac",
		},
		Log: Log{Level: "INFO"},
	}
}

// Location resolves the config file: an explicit path wins, then the
// environment. An empty result means defaults only.
func Location(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv(EnvFile)
}

// Load overlays the ini file at path (resolved with Location) on the
// defaults.
func Load(path string) (*Config, error) {
	cfg := New()
	loc := Location(path)
	if loc == "" {
		return cfg, nil
	}
	if err := ini.MapToWithMapper(cfg, ini.TitleUnderscore, loc); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", loc, err)
	}
	return cfg, nil
}

// TunerAddr is host:port of the rtl_tcp server.
func (c *Config) TunerAddr() string {
	return net.JoinHostPort(c.Tuner.Host, strconv.Itoa(c.Tuner.Port))
}

// FrequencyHz parses the configured start frequency.
func (c *Config) FrequencyHz() (uint32, error) {
	return ParseFrequency(c.Radio.Frequency)
}

// Validate checks the values the pipeline depends on.
func (c *Config) Validate() error {
	if c.Tuner.SampleRate <= 0 || c.Audio.TargetRate <= 0 {
		return fmt.Errorf("config: sample rates must be positive")
	}
	if c.Tuner.SampleRate <= c.Audio.TargetRate {
		return fmt.Errorf("config: sample_rate %d must exceed target_rate %d",
			c.Tuner.SampleRate, c.Audio.TargetRate)
	}
	mode := strings.ToUpper(c.Radio.Mode)
	if mode != "AM" && mode != "FM" {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Radio.Mode)
	}
	c.Radio.Mode = mode
	f, err := c.FrequencyHz()
	if err != nil {
		return err
	}
	if f < radio.MinFrequency || f > radio.MaxFrequency {
		return fmt.Errorf("%w: %d Hz outside %d-%d", ErrInvalidFrequency, f, radio.MinFrequency, radio.MaxFrequency)
	}
	if c.Web.SendQueue < 1 {
		c.Web.SendQueue = 1
	}
	return nil
}

// ParseFrequency accepts plain Hz or a K/M suffixed value: "93.5M", "1204k".
func ParseFrequency(s string) (uint32, error) {
	val := strings.ToUpper(strings.TrimSpace(s))
	mult := 1.0
	switch {
	case strings.HasSuffix(val, "K"):
		mult, val = 1e3, strings.TrimSuffix(val, "K")
	case strings.HasSuffix(val, "M"):
		mult, val = 1e6, strings.TrimSuffix(val, "M")
	}
	f64, err := strconv.ParseFloat(val, 64)
	if err != nil || f64 < 0 || f64*mult > float64(^uint32(0)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return uint32(f64*mult + 0.5), nil
}
