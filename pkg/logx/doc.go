// Package logx configures drumbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional Telegram sink for operators (min-level + rate limiting)
package logx
