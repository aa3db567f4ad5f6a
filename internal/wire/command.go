package wire

// Command is a debug-agent command code.
type Command uint8

// Command codes understood by the Flint debug agent.
const (
	// CmdReadStatus reads the current VM status flags.
	CmdReadStatus Command = 0x01

	// CmdReadStackTrace reads a single stack frame by index.
	CmdReadStackTrace Command = 0x02

	// CmdAddBreakpoint installs a breakpoint at (pc, class, method, descriptor).
	CmdAddBreakpoint Command = 0x03

	// CmdRemoveBreakpoint removes a previously installed breakpoint.
	CmdRemoveBreakpoint Command = 0x04

	// CmdRemoveAllBreakpoints clears the device-side breakpoint set.
	CmdRemoveAllBreakpoints Command = 0x05

	// CmdRun resumes execution.
	CmdRun Command = 0x06

	// CmdStop suspends execution.
	CmdStop Command = 0x07

	// CmdRestart restarts the VM with a new main class.
	CmdRestart Command = 0x08

	// CmdTerminate terminates the target program.
	CmdTerminate Command = 0x09

	// CmdStepIn steps into the next statement.
	CmdStepIn Command = 0x0A

	// CmdStepOver steps over the next statement.
	CmdStepOver Command = 0x0B

	// CmdStepOut steps out of the current frame.
	CmdStepOut Command = 0x0C

	// CmdSetExceptionMode enables or disables stop-on-exception.
	CmdSetExceptionMode Command = 0x0D

	// CmdReadExceptionInfo reads the pending exception type and message.
	CmdReadExceptionInfo Command = 0x0E

	// CmdReadLocal reads a local-variable slot of a frame.
	CmdReadLocal Command = 0x0F

	// CmdWriteLocal writes a local-variable slot of a frame.
	CmdWriteLocal Command = 0x10

	// CmdReadField reads a named instance field of an object.
	CmdReadField Command = 0x11

	// CmdWriteField writes a named instance field of an object.
	CmdWriteField Command = 0x12

	// CmdReadArray reads a range of array elements.
	CmdReadArray Command = 0x13

	// CmdReadSizeAndType reads the size and runtime type of an object.
	CmdReadSizeAndType Command = 0x14

	// CmdReadConsole drains buffered console output.
	CmdReadConsole Command = 0x15

	// CmdInstallFile begins a chunked file install.
	CmdInstallFile Command = 0x16

	// CmdWriteFileData transfers one chunk of file data.
	CmdWriteFileData Command = 0x17

	// CmdCompleteInstall finishes a chunked file install.
	CmdCompleteInstall Command = 0x18
)

// ResponseBit is set on the command byte of response frames. Comparisons
// against a request command must mask it off.
const ResponseBit = 0x80

// Response codes returned in the first payload byte of every response.
const (
	// ResponseOK indicates the command was executed.
	ResponseOK = 0x00

	// ResponseBusy indicates the agent could not accept the command.
	ResponseBusy = 0x01

	// ResponseUnknown indicates an unrecognized command.
	ResponseUnknown = 0x02

	// ResponseError indicates the command failed on the device.
	ResponseError = 0x03
)

// Status flag bits reported by CmdReadStatus.
const (
	// StatusStop is set while the VM is suspended.
	StatusStop = 0x01

	// StatusStopSet is set when a requested stop has just taken effect.
	StatusStopSet = 0x02

	// StatusException is set while an exception is pending.
	StatusException = 0x04

	// StatusConsole is set when console output is buffered on the device.
	StatusConsole = 0x08

	// StatusReset is set while the VM is mid-reset. Responses carrying it
	// must be discarded.
	StatusReset = 0x80
)

// String returns the mnemonic for a command code.
func (c Command) String() string {
	switch c & ^Command(ResponseBit) {
	case CmdReadStatus:
		return "READ_STATUS"
	case CmdReadStackTrace:
		return "READ_STACK_TRACE"
	case CmdAddBreakpoint:
		return "ADD_BKP"
	case CmdRemoveBreakpoint:
		return "REMOVE_BKP"
	case CmdRemoveAllBreakpoints:
		return "REMOVE_ALL_BKP"
	case CmdRun:
		return "RUN"
	case CmdStop:
		return "STOP"
	case CmdRestart:
		return "RESTART"
	case CmdTerminate:
		return "TERMINATE"
	case CmdStepIn:
		return "STEP_IN"
	case CmdStepOver:
		return "STEP_OVER"
	case CmdStepOut:
		return "STEP_OUT"
	case CmdSetExceptionMode:
		return "SET_EXCP_MODE"
	case CmdReadExceptionInfo:
		return "READ_EXCP_INFO"
	case CmdReadLocal:
		return "READ_LOCAL"
	case CmdWriteLocal:
		return "WRITE_LOCAL"
	case CmdReadField:
		return "READ_FIELD"
	case CmdWriteField:
		return "WRITE_FIELD"
	case CmdReadArray:
		return "READ_ARRAY"
	case CmdReadSizeAndType:
		return "READ_SIZE_AND_TYPE"
	case CmdReadConsole:
		return "READ_CONSOLE"
	case CmdInstallFile:
		return "INSTALL_FILE"
	case CmdWriteFileData:
		return "WRITE_FILE_DATA"
	case CmdCompleteInstall:
		return "COMPLETE_INSTALL"
	default:
		return "UNKNOWN"
	}
}
