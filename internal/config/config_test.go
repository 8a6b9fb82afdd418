package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdr-monitor/internal/radio"
)

func TestParseFrequency(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"93.5M", 93_500_000},
		{"93.5m", 93_500_000},
		{"1204k", 1_204_000},
		{"120400000", 120_400_000},
		{" 118.1M ", 118_100_000},
	}
	for _, c := range cases {
		got, err := ParseFrequency(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	for _, bad := range []string{"", "M", "abc", "-5M", "9000000M"} {
		_, err := ParseFrequency(bad)
		assert.True(t, errors.Is(err, ErrInvalidFrequency), bad)
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:1234", cfg.TunerAddr())
	f, err := cfg.FrequencyHz()
	require.NoError(t, err)
	assert.Equal(t, uint32(93_500_000), f)
}

func TestValidate_TuningWindowMatchesRadio(t *testing.T) {
	for _, hz := range []uint32{radio.MinFrequency, radio.MaxFrequency} {
		cfg := New()
		cfg.Radio.Frequency = strconv.FormatUint(uint64(hz), 10)
		assert.NoError(t, cfg.Validate(), hz)
	}
	for _, hz := range []uint32{radio.MinFrequency - 1, radio.MaxFrequency + 1} {
		cfg := New()
		cfg.Radio.Frequency = strconv.FormatUint(uint64(hz), 10)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidFrequency, hz)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cfg := New()
	cfg.Radio.Mode = "usb"
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidMode))

	cfg = New()
	cfg.Radio.Frequency = "433M"
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidFrequency))

	cfg = New()
	cfg.Audio.TargetRate = cfg.Tuner.SampleRate
	assert.Error(t, cfg.Validate())

	cfg = New()
	cfg.Radio.Mode = "am"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "AM", cfg.Radio.Mode)
}

func TestLoad_OverlaysIni(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.ini")
	body := `[tuner]
host = 10.0.0.5
sample_rate = 240000
reconnect_delay = 2s

[radio]
frequency = 120.5M
mode = AM

[web]
password = secret

[storage]
recording_format = wav
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Tuner.Host)
	assert.Equal(t, 1234, cfg.Tuner.Port)
	assert.Equal(t, 240000, cfg.Tuner.SampleRate)
	assert.Equal(t, 2*time.Second, cfg.Tuner.ReconnectDelay)
	assert.Equal(t, "120.5M", cfg.Radio.Frequency)
	assert.Equal(t, "AM", cfg.Radio.Mode)
	assert.Equal(t, "secret", cfg.Web.Password)
	assert.Equal(t, 16000, cfg.Audio.TargetRate)
	assert.Equal(t, "wav", cfg.Storage.RecordingFormat)
	assert.Equal(t, "bookmarks.json", cfg.Storage.BookmarksFile)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Location(t *testing.T) {
	t.Setenv(EnvFile, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, New(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)

	t.Setenv(EnvFile, "/from/env.ini")
	assert.Equal(t, "/from/env.ini", Location(""))
	assert.Equal(t, "/explicit.ini", Location("/explicit.ini"))
}
