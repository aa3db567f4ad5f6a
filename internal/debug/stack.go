package debug

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FlintVN/FlintDebug/internal/classfile"
	"github.com/FlintVN/FlintDebug/internal/wire"
)

// endFrameBit flags the last frame in READ_STACK_TRACE's echoed index.
const endFrameBit = 0x80000000

// StackFrame is one decoded frame of the target's call stack.
type StackFrame struct {
	// FrameID is the frame index, 0 at the top of the stack.
	FrameID uint32

	// LineInfo locates the frame in source.
	LineInfo *classfile.LineInfo

	// IsEndFrame marks the bottom of the stack.
	IsEndFrame bool

	// LocalVariables are the local-variable entries in scope at the
	// frame's pc, nil when none apply.
	LocalVariables []classfile.LocalVar
}

// FrameSummary is the front-end-shaped view of a stack frame.
type FrameSummary struct {
	// ID is the frame id used for variable requests.
	ID uint32

	// Name is the display name, "Class.method(int, String)".
	Name string

	// SourceName is the file name shown for the frame.
	SourceName string

	// SourcePath is the on-disk source path.
	SourcePath string

	// Line is the current source line.
	Line uint32

	// InstructionPointerReference is the frame's pc rendered as a string.
	InstructionPointerReference string
}

// readStackFrame fetches and decodes a single frame. The agent echoes the
// requested index with the top bit flagging the end frame; a mismatched
// echo fails the read.
func (s *Session) readStackFrame(frameID uint32) (*StackFrame, error) {
	resp, err := s.client.SendCommand(wire.CmdReadStackTrace, wire.AppendUint32(nil, frameID), 0)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s code 0x%02X", ErrCommandFailed, wire.CmdReadStackTrace, resp.ResponseCode)
	}
	data := resp.Data
	if len(data) < 8 {
		return nil, fmt.Errorf("stack frame: short response (%d bytes)", len(data))
	}

	idx := wire.Uint32At(data, 0)
	if idx&^uint32(endFrameBit) != frameID {
		return nil, fmt.Errorf("stack frame: agent answered frame %d, asked %d", idx&^uint32(endFrameBit), frameID)
	}
	pc := wire.Uint32At(data, 4)

	off := 8
	className, n, err := wire.ParsePaddedString(data[off:], true)
	if err != nil {
		return nil, fmt.Errorf("stack frame class: %w", err)
	}
	off += n
	methodName, n, err := wire.ParsePaddedString(data[off:], true)
	if err != nil {
		return nil, fmt.Errorf("stack frame method: %w", err)
	}
	off += n
	descriptor, _, err := wire.ParsePaddedString(data[off:], false)
	if err != nil {
		return nil, fmt.Errorf("stack frame descriptor: %w", err)
	}

	li, err := s.loader.LineInfoFromPc(pc, className, methodName, descriptor)
	if err != nil {
		return nil, fmt.Errorf("resolve pc %d in %s.%s: %w", pc, className, methodName, err)
	}

	return &StackFrame{
		FrameID:        frameID,
		LineInfo:       li,
		IsEndFrame:     idx&endFrameBit != 0,
		LocalVariables: li.LocalsAt(pc),
	}, nil
}

// topFrame returns frame 0, fetching it if the cache is cold.
func (s *Session) topFrame() (*StackFrame, error) {
	s.mu.Lock()
	if s.framesValid && len(s.frames) > 0 {
		frame := s.frames[0]
		s.mu.Unlock()
		return frame, nil
	}
	s.mu.Unlock()
	return s.readStackFrame(0)
}

// frameByID returns the cached frame with the given id, walking the stack
// when the cache is cold.
func (s *Session) frameByID(frameID uint32) (*StackFrame, error) {
	s.mu.Lock()
	if s.framesValid {
		for _, f := range s.frames {
			if f.FrameID == frameID {
				s.mu.Unlock()
				return f, nil
			}
		}
	}
	s.mu.Unlock()
	return s.readStackFrame(frameID)
}

// StackFrames walks the call stack from the top until the end frame or a
// frame without source information, caching the result until the next
// run/stop/step or stop edge.
func (s *Session) StackFrames() ([]*FrameSummary, error) {
	s.mu.Lock()
	if s.framesValid {
		frames := s.frames
		s.mu.Unlock()
		return summarize(frames), nil
	}
	s.mu.Unlock()

	var frames []*StackFrame
	for id := uint32(0); ; id++ {
		frame, err := s.readStackFrame(id)
		if err != nil {
			return nil, fmt.Errorf("walk frame %d: %w", id, err)
		}
		if frame.LineInfo.SourcePath == "" {
			break
		}
		frames = append(frames, frame)
		if frame.IsEndFrame {
			break
		}
	}

	s.mu.Lock()
	s.frames = frames
	s.framesValid = true
	s.mu.Unlock()

	return summarize(frames), nil
}

// summarize converts decoded frames to the front-end shape.
func summarize(frames []*StackFrame) []*FrameSummary {
	out := make([]*FrameSummary, len(frames))
	for i, f := range frames {
		out[i] = f.summary()
	}
	return out
}

// summary renders the frame for display.
func (f *StackFrame) summary() *FrameSummary {
	li := f.LineInfo
	sourceName := filepath.Base(li.SourcePath)
	if sourceName == "." || sourceName == "" {
		sourceName = classfile.SimpleName("L"+li.ClassName+";") + ".java"
	}
	return &FrameSummary{
		ID:                          f.FrameID,
		Name:                        formatFrameName(li.ClassName, li.MethodName, li.Descriptor),
		SourceName:                  sourceName,
		SourcePath:                  li.SourcePath,
		Line:                        li.Line,
		InstructionPointerReference: strconv.FormatUint(uint64(li.Pc), 10),
	}
}

// formatFrameName renders "ShortClass.method(short param types)".
func formatFrameName(className, methodName, descriptor string) string {
	params := classfile.ParameterTypes(descriptor)
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = classfile.SimpleName(p)
	}
	short := classfile.SimpleName("L" + className + ";")
	return fmt.Sprintf("%s.%s(%s)", short, methodName, strings.Join(names, ", "))
}
