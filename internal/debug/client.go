package debug

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FlintVN/FlintDebug/internal/transport"
	"github.com/FlintVN/FlintDebug/internal/wire"
)

// DefaultTimeout bounds an ordinary request/response exchange.
const DefaultTimeout = 200 * time.Millisecond

var (
	// ErrTimeout is returned when the agent does not answer in time.
	ErrTimeout = errors.New("debug: command timed out")

	// ErrWriteFailed is returned when the transport rejects the request.
	ErrWriteFailed = errors.New("debug: transport write failed")
)

// Client issues framed commands over a transport with at most one request
// inflight at a time. Responses are paired with requests in send order;
// there is no pipelining.
type Client struct {
	transport transport.Transport
	log       *zap.Logger

	// gate is a binary semaphore serializing wire traffic.
	gate chan struct{}

	waiterMu sync.Mutex
	waiter   chan *wire.DataResponse

	decoder wire.Decoder

	handlerMu sync.RWMutex
	onError   func(error)
	onClose   func()
}

// NewClient creates a client over the given transport and installs the
// receive callbacks.
func NewClient(t transport.Transport, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		transport: t,
		log:       log,
		gate:      make(chan struct{}, 1),
	}
	t.SetHandlers(transport.Handlers{
		Data:  c.onData,
		Error: c.onTransportError,
		Close: c.onTransportClose,
	})
	return c
}

// Connect opens the underlying transport.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Disconnect closes the underlying transport. Any pending command resolves
// through its write failure or timeout.
func (c *Client) Disconnect() error {
	return c.transport.Disconnect()
}

// Connected reports whether the transport link is up.
func (c *Client) Connected() bool {
	return c.transport.IsConnected()
}

// OnError sets the transport-error handler. The latest registration wins.
func (c *Client) OnError(handler func(error)) {
	c.handlerMu.Lock()
	c.onError = handler
	c.handlerMu.Unlock()
}

// OnClose sets the transport-close handler. The latest registration wins.
func (c *Client) OnClose(handler func()) {
	c.handlerMu.Lock()
	c.onClose = handler
	c.handlerMu.Unlock()
}

// SendCommand writes one framed command and waits for its response or the
// timeout. A zero timeout means DefaultTimeout. The response's echoed
// command must match the request after masking the response bit.
func (c *Client) SendCommand(cmd wire.Command, payload []byte, timeout time.Duration) (*wire.DataResponse, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c.gate <- struct{}{}
	defer func() { <-c.gate }()

	ch := make(chan *wire.DataResponse, 1)
	c.waiterMu.Lock()
	c.waiter = ch
	c.waiterMu.Unlock()

	if !c.transport.Write(wire.EncodePacket(cmd, payload)) {
		c.clearWaiter()
		return nil, fmt.Errorf("%w: %s", ErrWriteFailed, cmd)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		c.clearWaiter()
		if resp.Cmd != cmd&^wire.Command(wire.ResponseBit) {
			return nil, fmt.Errorf("debug: response echoes %s, sent %s", resp.Cmd, cmd)
		}
		return resp, nil
	case <-timer.C:
		// The waiter slot must be cleared before the gate is released so
		// a late frame cannot be delivered to the next request.
		c.clearWaiter()
		c.log.Debug("command timed out", zap.Stringer("cmd", cmd), zap.Duration("timeout", timeout))
		return nil, fmt.Errorf("%w: %s", ErrTimeout, cmd)
	}
}

// clearWaiter removes the one-shot receive slot.
func (c *Client) clearWaiter() {
	c.waiterMu.Lock()
	c.waiter = nil
	c.waiterMu.Unlock()
}

// onData feeds received chunks through the frame decoder and delivers any
// completed responses. It runs on the transport's receive goroutine.
func (c *Client) onData(chunk []byte) {
	resps, err := c.decoder.Feed(chunk)
	if err != nil {
		c.log.Warn("frame decode failed", zap.Error(err))
	}
	for _, resp := range resps {
		c.deliver(resp)
	}
}

// deliver hands a response to the current waiter. Responses arriving with
// no waiter installed are late answers to a timed-out request and are
// dropped.
func (c *Client) deliver(resp *wire.DataResponse) {
	c.waiterMu.Lock()
	ch := c.waiter
	c.waiter = nil
	c.waiterMu.Unlock()

	if ch == nil {
		c.log.Debug("dropping unsolicited frame", zap.Stringer("cmd", resp.Cmd))
		return
	}
	ch <- resp
}

func (c *Client) onTransportError(err error) {
	c.handlerMu.RLock()
	handler := c.onError
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

func (c *Client) onTransportClose() {
	c.handlerMu.RLock()
	handler := c.onClose
	c.handlerMu.RUnlock()
	if handler != nil {
		handler()
	}
}
