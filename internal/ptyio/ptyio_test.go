//go:build linux

package ptyio

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSlave(t *testing.T, p PTY) *os.File {
	t.Helper()
	f, err := os.OpenFile(p.TTYName(), os.O_RDWR|syscall.O_NOCTTY, 0)
	require.NoError(t, err, "slave MUST be openable by path")
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestPTYWriteReachesSlave(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	defer p.Close()

	slave := openSlave(t, p)

	n, err := p.Write([]byte("OK\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 16)
	got := 0
	for got < 3 {
		n, err := slave.Read(buf[got:])
		require.NoError(t, err)
		got += n
	}
	assert.Equal(t, "OK\n", string(buf[:got]))

	assert.Eventually(t, func() bool { return p.Stats().BytesToSlave == 3 }, time.Second, 10*time.Millisecond)
}

func TestPTYSlaveInput(t *testing.T) {
	p, err := New(&Options{PollTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	slave := openSlave(t, p)

	t.Run("buffered without callback", func(t *testing.T) {
		_, err := slave.Write([]byte("forward\n"))
		require.NoError(t, err)

		buf := make([]byte, 64)
		assert.Eventually(t, func() bool {
			n, err := p.Read(buf)
			return err == nil && string(buf[:n]) == "forward\n"
		}, 2*time.Second, 10*time.Millisecond)

		_, err = p.Read(buf)
		assert.ErrorIs(t, err, syscall.EAGAIN, "empty queue MUST report EAGAIN")
	})

	t.Run("delivered to callback", func(t *testing.T) {
		received := make(chan string, 4)
		p.SetReadCallback(func(data []byte) { received <- string(data) })

		_, err := slave.Write([]byte("left\n"))
		require.NoError(t, err)

		select {
		case got := <-received:
			assert.Equal(t, "left\n", got)
		case <-time.After(2 * time.Second):
			t.Fatal("callback MUST receive slave input")
		}
	})
}

func TestPTYClose(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "Close MUST be idempotent")

	_, err = p.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = p.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestPTYWriteOverflow(t *testing.T) {
	p, err := New(&Options{WriteCap: 8})
	require.NoError(t, err)
	defer p.Close()

	n, err := p.Write(make([]byte, 64))
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 8)
	assert.Equal(t, uint64(64-n), p.Stats().DroppedWrite)
}
