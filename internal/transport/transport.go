// Package transport provides the byte-stream link to the Flint debug agent.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Handlers are the callbacks a Transport invokes from its receive loop.
// Data is called with each received chunk, Error on a read failure and
// Close exactly once when the link goes down.
type Handlers struct {
	Data  func([]byte)
	Error func(error)
	Close func()
}

// Transport is a reliable byte-stream link.
type Transport interface {
	// Connect opens the link. Handlers must be set before Connect.
	Connect(ctx context.Context) error

	// Disconnect closes the link. Safe to call more than once.
	Disconnect() error

	// IsConnected reports whether the link is up.
	IsConnected() bool

	// Write sends bytes. It reports false once the link is down.
	Write(b []byte) bool

	// SetHandlers installs the receive callbacks.
	SetHandlers(h Handlers)
}

// TCPTransport connects to the agent over TCP.
type TCPTransport struct {
	address string
	log     *zap.Logger

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	handlers  Handlers
	closeOnce *sync.Once
}

// NewTCP creates a TCP transport for the given address.
func NewTCP(address string, log *zap.Logger) *TCPTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &TCPTransport{address: address, log: log}
}

// SetHandlers installs the receive callbacks.
func (t *TCPTransport) SetHandlers(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

// Connect dials the agent and starts the receive loop.
func (t *TCPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return fmt.Errorf("transport: already connected")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.address, err)
	}

	t.conn = conn
	t.connected = true
	t.closeOnce = &sync.Once{}
	t.log.Debug("transport connected", zap.String("address", t.address))

	go t.receiveLoop(conn, t.closeOnce)
	return nil
}

// Disconnect closes the link.
func (t *TCPTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	once := t.closeOnce
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	if once != nil {
		once.Do(t.notifyClose)
	}
	return err
}

// IsConnected reports whether the link is up.
func (t *TCPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Write sends bytes on the link.
func (t *TCPTransport) Write(b []byte) bool {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return false
	}
	if _, err := conn.Write(b); err != nil {
		t.log.Warn("transport write failed", zap.Error(err))
		return false
	}
	return true
}

// receiveLoop pumps received chunks into the data handler until the
// connection fails or is closed.
func (t *TCPTransport) receiveLoop(conn net.Conn, once *sync.Once) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			t.mu.Lock()
			handler := t.handlers.Data
			t.mu.Unlock()
			if handler != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				handler(chunk)
			}
		}
		if err != nil {
			t.mu.Lock()
			stillUp := t.connected && t.conn == conn
			errHandler := t.handlers.Error
			if stillUp {
				t.conn = nil
				t.connected = false
			}
			t.mu.Unlock()

			if stillUp {
				t.log.Debug("transport read ended", zap.Error(err))
				if errHandler != nil {
					errHandler(err)
				}
			}
			once.Do(t.notifyClose)
			return
		}
	}
}

func (t *TCPTransport) notifyClose() {
	t.mu.Lock()
	handler := t.handlers.Close
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
}
