package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer accepts one connection and echoes everything back. The stop
// function closes both the listener and any accepted connection.
func echoServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var accepted net.Conn

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		mu.Lock()
		accepted = conn
		mu.Unlock()
		defer conn.Close()
		buf := make([]byte, 1024)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String(), func() {
		ln.Close()
		mu.Lock()
		if accepted != nil {
			accepted.Close()
		}
		mu.Unlock()
		wg.Wait()
	}
}

func TestTCPTransportRoundTrip(t *testing.T) {
	addr, stop := echoServer(t)
	defer stop()

	received := make(chan []byte, 4)
	tr := NewTCP(addr, nil)
	tr.SetHandlers(Handlers{
		Data: func(b []byte) { received <- b },
	})

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect()

	assert.True(t, tr.IsConnected())
	require.True(t, tr.Write([]byte{0x01, 0x02, 0x03}))

	var got []byte
	deadline := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case chunk := <-received:
			got = append(got, chunk...)
		case <-deadline:
			t.Fatal("echo not received")
		}
	}
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got)
}

func TestTCPTransportConnectFailure(t *testing.T) {
	tr := NewTCP("127.0.0.1:1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := tr.Connect(ctx)
	assert.Error(t, err)
	assert.False(t, tr.IsConnected())
}

func TestTCPTransportWriteWhenDisconnected(t *testing.T) {
	tr := NewTCP("127.0.0.1:1", nil)
	assert.False(t, tr.Write([]byte{0x01}))
}

func TestTCPTransportCloseEventOnce(t *testing.T) {
	addr, stop := echoServer(t)
	defer stop()

	var mu sync.Mutex
	closeCount := 0
	closed := make(chan struct{}, 2)

	tr := NewTCP(addr, nil)
	tr.SetHandlers(Handlers{
		Close: func() {
			mu.Lock()
			closeCount++
			mu.Unlock()
			closed <- struct{}{}
		},
	})

	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Disconnect())
	require.NoError(t, tr.Disconnect())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close event not delivered")
	}
	// Give the receive loop a moment to observe the closed socket; the
	// event must still fire only once.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, closeCount)
	mu.Unlock()
}

func TestTCPTransportRemoteClose(t *testing.T) {
	addr, stop := echoServer(t)

	closed := make(chan struct{})
	tr := NewTCP(addr, nil)
	tr.SetHandlers(Handlers{
		Error: func(err error) {},
		Close: func() { close(closed) },
	})

	require.NoError(t, tr.Connect(context.Background()))
	stop()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("remote close not observed")
	}
	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Disconnect())
}
