package debug

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FlintVN/FlintDebug/internal/classfile"
	"github.com/FlintVN/FlintDebug/internal/wire"
)

// Poll and long-command intervals.
const (
	statusPollInterval  = 100 * time.Millisecond
	consolePollInterval = 300 * time.Millisecond

	// restartTimeout bounds RESTART and TERMINATE, which wait on the VM.
	restartTimeout = 5 * time.Second
)

// ErrCommandFailed is returned when the agent answers with a non-OK
// response code.
var ErrCommandFailed = errors.New("debug: command failed")

// StopReason describes why the target stopped. It is empty for ordinary
// stops.
type StopReason string

// StopReasonException marks a stop caused by an uncaught exception.
const StopReasonException StopReason = "exception"

// Session is a debug session with a Flint agent. All public operations
// share one command gate, so they may be called from any goroutine.
type Session struct {
	client *Client
	loader classfile.ClassLoader
	log    *zap.Logger

	handlerMu sync.RWMutex
	onStop    func(StopReason)
	onStdout  func(string)
	onError   func(error)
	onClose   func()

	mu          sync.Mutex
	status      uint8
	frames      []*StackFrame
	framesValid bool
	breakpoints []*Breakpoint
	varRefs     map[uint32]*ValueInfo

	pollMu      sync.Mutex
	pollDone    chan struct{}
	pollStarted bool
}

// NewSession creates a session around an already-created client and class
// loader.
func NewSession(client *Client, loader classfile.ClassLoader, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		client:  client,
		loader:  loader,
		log:     log,
		varRefs: make(map[uint32]*ValueInfo),
	}
	client.OnError(s.emitError)
	client.OnClose(s.handleTransportClose)
	return s
}

// Connect opens the transport.
func (s *Session) Connect(ctx context.Context) error {
	return s.client.Connect(ctx)
}

// Disconnect cancels the poll tasks and closes the transport.
func (s *Session) Disconnect() error {
	s.stopPolling()
	return s.client.Disconnect()
}

// Connected reports whether the transport link is up.
func (s *Session) Connected() bool {
	return s.client.Connected()
}

// Event registration. Exactly one handler is kept per event kind; the
// latest registration wins.

// OnStop sets the stop-event handler.
func (s *Session) OnStop(handler func(StopReason)) {
	s.handlerMu.Lock()
	s.onStop = handler
	s.handlerMu.Unlock()
}

// OnStdout sets the console-output handler.
func (s *Session) OnStdout(handler func(string)) {
	s.handlerMu.Lock()
	s.onStdout = handler
	s.handlerMu.Unlock()
}

// OnError sets the transport-error handler.
func (s *Session) OnError(handler func(error)) {
	s.handlerMu.Lock()
	s.onError = handler
	s.handlerMu.Unlock()
}

// OnClose sets the transport-close handler.
func (s *Session) OnClose(handler func()) {
	s.handlerMu.Lock()
	s.onClose = handler
	s.handlerMu.Unlock()
}

// LastStatus returns the most recently polled status byte.
func (s *Session) LastStatus() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// stopped reports whether the last polled status has the stop bit set.
func (s *Session) stopped() bool {
	return s.LastStatus()&wire.StatusStop != 0
}

// Run resumes execution. Calling it while the target is already running is
// a no-op.
func (s *Session) Run() error {
	if !s.stopped() {
		return nil
	}
	s.invalidateFrames()
	return s.simpleCommand(wire.CmdRun, nil, 0)
}

// Stop suspends execution. Calling it while already stopped is a no-op.
func (s *Session) Stop() error {
	if s.stopped() {
		return nil
	}
	s.invalidateFrames()
	return s.simpleCommand(wire.CmdStop, nil, 0)
}

// StepIn steps into the next statement.
func (s *Session) StepIn() error {
	return s.step(wire.CmdStepIn)
}

// StepOver steps over the next statement.
func (s *Session) StepOver() error {
	return s.step(wire.CmdStepOver)
}

// StepOut steps out of the current frame. The code-length hint is zero.
func (s *Session) StepOut() error {
	s.invalidateFrames()
	return s.simpleCommand(wire.CmdStepOut, wire.AppendUint32(nil, 0), 0)
}

// step issues a step command carrying the current top frame's code length
// as a hint for the agent's single-step range.
func (s *Session) step(cmd wire.Command) error {
	hint := uint32(0)
	if frame, err := s.topFrame(); err == nil && frame.LineInfo != nil {
		hint = frame.LineInfo.CodeLength
	}
	s.invalidateFrames()
	return s.simpleCommand(cmd, wire.AppendUint32(nil, hint), 0)
}

// Restart restarts the VM with the given main class.
func (s *Session) Restart(mainClass string) error {
	payload := make([]byte, 0, wire.WireStringSize(mainClass))
	payload = wire.AppendWireString(payload, classfile.NormalizeClassName(mainClass))
	return s.simpleCommand(wire.CmdRestart, payload, restartTimeout)
}

// Terminate terminates the target program. When includeDebugger is set the
// on-device debug agent shuts down as well.
func (s *Session) Terminate(includeDebugger bool) error {
	flag := byte(0)
	if includeDebugger {
		flag = 1
	}
	return s.simpleCommand(wire.CmdTerminate, []byte{flag}, restartTimeout)
}

// simpleCommand sends a command and demands an OK response.
func (s *Session) simpleCommand(cmd wire.Command, payload []byte, timeout time.Duration) error {
	resp, err := s.client.SendCommand(cmd, payload, timeout)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %s code 0x%02X", ErrCommandFailed, cmd, resp.ResponseCode)
	}
	return nil
}

// StartPolling starts the status and console poll tasks. It is effective
// once per session; later calls are no-ops.
func (s *Session) StartPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollStarted {
		return
	}
	s.pollStarted = true
	s.pollDone = make(chan struct{})
	go s.pollLoop(statusPollInterval, s.checkStatus)
	go s.pollLoop(consolePollInterval, s.checkConsole)
}

// stopPolling cancels both poll tasks.
func (s *Session) stopPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollDone != nil {
		close(s.pollDone)
		s.pollDone = nil
	}
}

// pollLoop runs task at a fixed delay after each completion while the
// transport stays connected.
func (s *Session) pollLoop(interval time.Duration, task func()) {
	s.pollMu.Lock()
	done := s.pollDone
	s.pollMu.Unlock()
	if done == nil {
		return
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-done:
			return
		case <-timer.C:
		}
		if !s.client.Connected() {
			return
		}
		task()
		timer.Reset(interval)
	}
}

// checkStatus polls the VM status and emits stop events on edges.
func (s *Session) checkStatus() {
	resp, err := s.client.SendCommand(wire.CmdReadStatus, nil, 0)
	if err != nil || !resp.OK() || len(resp.Data) < 1 {
		return
	}
	status := resp.Data[0]
	if status&wire.StatusReset != 0 {
		// Target is mid-reset; the byte is garbage.
		return
	}

	s.mu.Lock()
	prev := s.status
	s.status = status
	var reason StopReason
	emit := false
	if status != prev {
		switch {
		case status&wire.StatusStopSet != 0 && status&wire.StatusStop != 0:
			emit = true
			if status&wire.StatusException != 0 {
				reason = StopReasonException
			}
		case (status^prev)&wire.StatusStop != 0 && status&wire.StatusStop != 0:
			emit = true
		}
	}
	if emit {
		s.frames = nil
		s.framesValid = false
	}
	s.mu.Unlock()

	if emit {
		s.log.Debug("target stopped", zap.Uint8("status", status), zap.String("reason", string(reason)))
		s.emitStop(reason)
	}
}

// checkConsole drains console output when the last status flagged some.
func (s *Session) checkConsole() {
	if s.LastStatus()&wire.StatusConsole == 0 {
		return
	}
	resp, err := s.client.SendCommand(wire.CmdReadConsole, nil, 0)
	if err != nil || !resp.OK() || len(resp.Data) == 0 {
		return
	}
	s.emitStdout(string(resp.Data))
}

// invalidateFrames marks the cached stack frames unknown.
func (s *Session) invalidateFrames() {
	s.mu.Lock()
	s.frames = nil
	s.framesValid = false
	s.mu.Unlock()
}

func (s *Session) emitStop(reason StopReason) {
	s.handlerMu.RLock()
	handler := s.onStop
	s.handlerMu.RUnlock()
	if handler != nil {
		handler(reason)
	}
}

func (s *Session) emitStdout(text string) {
	s.handlerMu.RLock()
	handler := s.onStdout
	s.handlerMu.RUnlock()
	if handler != nil {
		handler(text)
	}
}

func (s *Session) emitError(err error) {
	s.handlerMu.RLock()
	handler := s.onError
	s.handlerMu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// handleTransportClose stops the pollers and forwards the close event.
func (s *Session) handleTransportClose() {
	s.stopPolling()

	s.handlerMu.RLock()
	handler := s.onClose
	s.handlerMu.RUnlock()
	if handler != nil {
		handler()
	}
}

// Close disconnects and releases session state.
func (s *Session) Close() error {
	err := s.Disconnect()
	s.mu.Lock()
	s.varRefs = make(map[uint32]*ValueInfo)
	s.breakpoints = nil
	s.frames = nil
	s.framesValid = false
	s.mu.Unlock()
	return err
}
