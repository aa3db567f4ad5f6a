package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlintVN/FlintDebug/internal/classfile"
	"github.com/FlintVN/FlintDebug/internal/wire"
)

// twoFrameAgent scripts READ_STACK_TRACE for a two-frame stack and
// registers matching line info.
func twoFrameAgent(agent *scriptedAgent, loader *fakeClassLoader) {
	loader.addLine(&classfile.LineInfo{
		ClassName:  "com/example/Foo",
		MethodName: "compute",
		Descriptor: "(I)I",
		Pc:         12,
		Line:       30,
		SourcePath: "src/com/example/Foo.java",
		CodeLength: 64,
	})
	loader.addLine(&classfile.LineInfo{
		ClassName:  "com/example/Foo",
		MethodName: "main",
		Descriptor: "([Ljava/lang/String;)V",
		Pc:         42,
		Line:       10,
		SourcePath: "src/com/example/Foo.java",
		CodeLength: 128,
	})
	agent.on(wire.CmdReadStackTrace, func(payload []byte) (byte, []byte) {
		switch wire.Uint32At(payload, 0) {
		case 0:
			return wire.ResponseOK, stackFrameResponse(0, false, 12, "com/example/Foo", "compute", "(I)I")
		case 1:
			return wire.ResponseOK, stackFrameResponse(1, true, 42, "com/example/Foo", "main", "([Ljava/lang/String;)V")
		default:
			return wire.ResponseError, nil
		}
	})
}

func TestStackFramesWalk(t *testing.T) {
	session, mt, agent, loader := newTestSession(t)
	twoFrameAgent(agent, loader)

	frames, err := session.StackFrames()
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, uint32(0), frames[0].ID)
	assert.Equal(t, "Foo.compute(int)", frames[0].Name)
	assert.Equal(t, "Foo.java", frames[0].SourceName)
	assert.Equal(t, "src/com/example/Foo.java", frames[0].SourcePath)
	assert.Equal(t, uint32(30), frames[0].Line)
	assert.Equal(t, "12", frames[0].InstructionPointerReference)

	assert.Equal(t, "Foo.main(String[])", frames[1].Name)

	// Second request is served from the cache.
	count := mt.writeCount()
	_, err = session.StackFrames()
	require.NoError(t, err)
	assert.Equal(t, count, mt.writeCount())
}

func TestStackFramesInvalidatedByStep(t *testing.T) {
	session, mt, agent, loader := newTestSession(t)
	twoFrameAgent(agent, loader)
	agent.ok(wire.CmdStepIn, nil)

	_, err := session.StackFrames()
	require.NoError(t, err)
	require.NoError(t, session.StepIn())

	count := mt.writeCount()
	_, err = session.StackFrames()
	require.NoError(t, err)
	assert.Greater(t, mt.writeCount(), count, "cache must be rebuilt after a step")
}

func TestReadStackFrameEchoMismatch(t *testing.T) {
	session, _, agent, _ := newTestSession(t)
	agent.on(wire.CmdReadStackTrace, func(payload []byte) (byte, []byte) {
		return wire.ResponseOK, stackFrameResponse(5, false, 0, "Foo", "main", "()V")
	})

	_, err := session.readStackFrame(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answered frame 5")
}

func TestStackFramesStopAtFrameWithoutSource(t *testing.T) {
	session, _, agent, loader := newTestSession(t)
	loader.addLine(&classfile.LineInfo{
		ClassName:  "Foo",
		MethodName: "run",
		Descriptor: "()V",
		Pc:         1,
		Line:       2,
		SourcePath: "Foo.java",
	})
	loader.addLine(&classfile.LineInfo{
		ClassName:  "Native",
		MethodName: "entry",
		Descriptor: "()V",
		Pc:         9,
		// No source path: synthetic entry frame.
	})
	agent.on(wire.CmdReadStackTrace, func(payload []byte) (byte, []byte) {
		switch wire.Uint32At(payload, 0) {
		case 0:
			return wire.ResponseOK, stackFrameResponse(0, false, 1, "Foo", "run", "()V")
		case 1:
			return wire.ResponseOK, stackFrameResponse(1, false, 9, "Native", "entry", "()V")
		default:
			return wire.ResponseError, nil
		}
	})

	frames, err := session.StackFrames()
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestStackFrameLocalsFilteredByScope(t *testing.T) {
	session, _, agent, loader := newTestSession(t)
	loader.addLine(&classfile.LineInfo{
		ClassName:  "Foo",
		MethodName: "main",
		Descriptor: "()V",
		Pc:         20,
		Line:       4,
		SourcePath: "Foo.java",
		Method: &classfile.MethodInfo{
			Name:       "main",
			Descriptor: "()V",
			LocalVariables: []classfile.LocalVar{
				{Name: "visible", Descriptor: "I", Index: 0, StartPc: 0, Length: 100},
				{Name: "gone", Descriptor: "I", Index: 1, StartPc: 0, Length: 10},
			},
		},
	})
	agent.on(wire.CmdReadStackTrace, func(payload []byte) (byte, []byte) {
		return wire.ResponseOK, stackFrameResponse(0, true, 20, "Foo", "main", "()V")
	})

	frame, err := session.readStackFrame(0)
	require.NoError(t, err)
	require.Len(t, frame.LocalVariables, 1)
	assert.Equal(t, "visible", frame.LocalVariables[0].Name)
	assert.True(t, frame.IsEndFrame)
}
