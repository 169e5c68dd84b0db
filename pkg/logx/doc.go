// Package logx is logrelay's operator logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// logx never routes records through the relay Router. Sink failures are
// reported here, so a broken channel cannot feed back into itself.
package logx
