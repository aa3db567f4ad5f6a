package debug

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/FlintVN/FlintDebug/internal/classfile"
	"github.com/FlintVN/FlintDebug/internal/wire"
)

// Breakpoint is one device-acknowledged breakpoint. Entries enter and
// leave the session's set only on a positive ADD/REMOVE acknowledgement.
type Breakpoint struct {
	// Line is the source line.
	Line uint32

	// SourcePath is the source file the line belongs to.
	SourcePath string

	// ClassName, MethodName and Descriptor locate the code.
	ClassName  string
	MethodName string
	Descriptor string

	// Pc is the bytecode offset the line resolved to.
	Pc uint32
}

// payload frames the breakpoint for ADD_BKP and REMOVE_BKP.
func (b *Breakpoint) payload() []byte {
	size := 4 + wire.WireStringSize(b.ClassName) + wire.WireStringSize(b.MethodName) + wire.WireStringSize(b.Descriptor)
	p := make([]byte, 0, size)
	p = wire.AppendUint32(p, b.Pc)
	p = wire.AppendWireString(p, b.ClassName)
	p = wire.AppendWireString(p, b.MethodName)
	return wire.AppendWireString(p, b.Descriptor)
}

// Breakpoints returns a copy of the acknowledged breakpoint set.
func (s *Session) Breakpoints() []*Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Breakpoint{}, s.breakpoints...)
}

// SetBreakpoints reconciles the device's breakpoints for sourcePath against
// the requested lines: breakpoints no longer requested are removed, new
// lines are resolved through the class loader and added. The first failed
// command aborts the sweep.
func (s *Session) SetBreakpoints(lines []uint32, sourcePath string) error {
	requested := make(map[uint32]bool, len(lines))
	for _, l := range lines {
		requested[l] = true
	}

	s.mu.Lock()
	var toRemove []*Breakpoint
	existing := make(map[uint32]bool)
	for _, bp := range s.breakpoints {
		if bp.SourcePath != sourcePath {
			continue
		}
		if requested[bp.Line] {
			existing[bp.Line] = true
		} else {
			toRemove = append(toRemove, bp)
		}
	}
	s.mu.Unlock()

	var toAdd []*Breakpoint
	for _, line := range lines {
		if existing[line] {
			continue
		}
		li, err := s.loader.LineInfoFromLine(line, sourcePath)
		if err != nil {
			return fmt.Errorf("resolve %s:%d: %w", sourcePath, line, err)
		}
		toAdd = append(toAdd, &Breakpoint{
			Line:       line,
			SourcePath: sourcePath,
			ClassName:  classfile.NormalizeClassName(li.ClassName),
			MethodName: li.MethodName,
			Descriptor: li.Descriptor,
			Pc:         li.Pc,
		})
	}

	for _, bp := range toRemove {
		if err := s.simpleCommand(wire.CmdRemoveBreakpoint, bp.payload(), 0); err != nil {
			return fmt.Errorf("remove breakpoint %s:%d: %w", bp.SourcePath, bp.Line, err)
		}
		s.forgetBreakpoint(bp)
		s.log.Debug("breakpoint removed",
			zap.String("source", bp.SourcePath), zap.Uint32("line", bp.Line))
	}

	for _, bp := range toAdd {
		if err := s.simpleCommand(wire.CmdAddBreakpoint, bp.payload(), 0); err != nil {
			return fmt.Errorf("add breakpoint %s:%d: %w", bp.SourcePath, bp.Line, err)
		}
		s.mu.Lock()
		s.breakpoints = append(s.breakpoints, bp)
		s.mu.Unlock()
		s.log.Debug("breakpoint added",
			zap.String("source", bp.SourcePath), zap.Uint32("line", bp.Line),
			zap.String("class", bp.ClassName), zap.Uint32("pc", bp.Pc))
	}

	return nil
}

// forgetBreakpoint drops bp from the acknowledged set.
func (s *Session) forgetBreakpoint(bp *Breakpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.breakpoints {
		if cur == bp {
			s.breakpoints = append(s.breakpoints[:i], s.breakpoints[i+1:]...)
			return
		}
	}
}

// RemoveAllBreakpoints clears the device-side breakpoint set
// unconditionally.
func (s *Session) RemoveAllBreakpoints() error {
	if err := s.simpleCommand(wire.CmdRemoveAllBreakpoints, nil, 0); err != nil {
		return err
	}
	s.mu.Lock()
	s.breakpoints = nil
	s.mu.Unlock()
	return nil
}

// SetExceptionBreakpoints toggles stop-on-exception on the device.
func (s *Session) SetExceptionBreakpoints(enabled bool) error {
	mode := byte(0)
	if enabled {
		mode = 1
	}
	return s.simpleCommand(wire.CmdSetExceptionMode, []byte{mode}, 0)
}

// ExceptionInfo is the pending exception's type and message.
type ExceptionInfo struct {
	TypeName string
	Message  string
}

// ReadExceptionInfo reads the pending exception from the device.
func (s *Session) ReadExceptionInfo() (*ExceptionInfo, error) {
	resp, err := s.client.SendCommand(wire.CmdReadExceptionInfo, nil, 0)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s code 0x%02X", ErrCommandFailed, wire.CmdReadExceptionInfo, resp.ResponseCode)
	}

	typeName, n, err := wire.ParsePaddedString(resp.Data, true)
	if err != nil {
		return nil, fmt.Errorf("exception type: %w", err)
	}
	message, _, err := wire.ParsePaddedString(resp.Data[n:], true)
	if err != nil {
		return nil, fmt.Errorf("exception message: %w", err)
	}
	return &ExceptionInfo{TypeName: typeName, Message: message}, nil
}
