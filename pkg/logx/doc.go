// Package logx configures dashwatch's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured (one line per event)
//   - A zero-value logger that is a safe no-op, so components never nil-check
package logx
