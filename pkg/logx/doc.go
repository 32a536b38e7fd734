// Package logx configures cronkeep's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional notification sink (min-level + rate limiting), used for Telegram alerts
package logx
