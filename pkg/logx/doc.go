// Package logx configures newsrelay's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one file per start when a directory is configured
//   - Optional Telegram sink (min-level + rate limiting, never blocks the caller)
package logx
