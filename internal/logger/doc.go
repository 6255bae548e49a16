// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder and an optional log file,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every service accepts a context and extracts the logger from it, so image
// and update identifiers attached with WithKV show up on every line logged
// while that image is processed.
package logger
