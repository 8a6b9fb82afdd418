package rtltcp

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// header is the 12-byte dongle info of an R820T with 29 gains.
func header(magic string) []byte {
	b := make([]byte, 12)
	copy(b, magic)
	binary.BigEndian.PutUint32(b[4:], 5)
	binary.BigEndian.PutUint32(b[8:], 29)
	return b
}

type command struct {
	op    byte
	param uint32
}

func readCommands(t *testing.T, conn net.Conn, n int) []command {
	t.Helper()
	cmds := make([]command, 0, n)
	buf := make([]byte, 5)
	for i := 0; i < n; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err := io.ReadFull(conn, buf)
		require.NoError(t, err)
		cmds = append(cmds, command{op: buf[0], param: binary.BigEndian.Uint32(buf[1:])})
	}
	return cmds
}

func TestLink_SetupStreamAndReconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connected := make(chan DongleInfo, 4)
	link := New(Config{
		Addr:           ln.Addr().String(),
		SampleRate:     250000,
		ReconnectDelay: 20 * time.Millisecond,
		MinRead:        30,
		Frequency:      func() uint32 { return 120400000 },
		OnConnect:      func(info DongleInfo) { connected <- info },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan []byte)
	done := make(chan error, 1)
	go func() { done <- link.Run(ctx, out) }()

	want := []command{
		{op: 0x01, param: 120400000},
		{op: 0x02, param: 250000},
		{op: 0x03, param: 0},
	}

	for round := 0; round < 2; round++ {
		conn, err := ln.Accept()
		require.NoError(t, err)
		_, err = conn.Write(header("RTL0"))
		require.NoError(t, err)

		assert.Equal(t, want, readCommands(t, conn, len(want)))
		select {
		case info := <-connected:
			assert.Equal(t, uint32(29), info.GainCount)
		case <-time.After(2 * time.Second):
			t.Fatal("OnConnect not called")
		}
		assert.True(t, link.Connected())

		_, err = conn.Write([]byte{1, 2, 3, 4})
		require.NoError(t, err)
		var got []byte
		for len(got) < 4 {
			select {
			case chunk := <-out:
				got = append(got, chunk...)
			case <-time.After(2 * time.Second):
				t.Fatal("no data from link")
			}
		}
		assert.Equal(t, []byte{1, 2, 3, 4}, got)

		require.NoError(t, link.SetFrequency(77100000))
		assert.Equal(t, []command{{op: 0x01, param: 77100000}}, readCommands(t, conn, 1))

		conn.Close()
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.ErrorIs(t, link.SetFrequency(1), ErrNotConnected)
}

func TestLink_BadMagicReconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connected := make(chan DongleInfo, 1)
	link := New(Config{
		Addr:           ln.Addr().String(),
		SampleRate:     250000,
		ReconnectDelay: 20 * time.Millisecond,
		OnConnect:      func(info DongleInfo) { connected <- info },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx, make(chan []byte))

	conn, err := ln.Accept()
	require.NoError(t, err)
	_, err = conn.Write(header("XXXX"))
	require.NoError(t, err)

	// the link gives up on this server and dials again
	second, err := ln.Accept()
	require.NoError(t, err)
	defer second.Close()
	conn.Close()

	select {
	case <-connected:
		t.Fatal("connected despite a bad header")
	default:
	}
	assert.False(t, link.Connected())
}

func TestLink_CommandWithoutSession(t *testing.T) {
	link := New(Config{Addr: "127.0.0.1:1"})
	assert.ErrorIs(t, link.SetSampleRate(250000), ErrNotConnected)
	assert.ErrorIs(t, link.SetAutoGain(), ErrNotConnected)
	assert.False(t, link.Connected())
}
