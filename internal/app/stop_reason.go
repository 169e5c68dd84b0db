package app

// StopReason is recorded in the shutdown log line.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopInputEOF   StopReason = "input_eof"
	StopCommand    StopReason = "command_done"
)
