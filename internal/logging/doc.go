// Package logging configures structured slog output for fusesearch.
//
// Logs are JSON lines written to a size-rotated file under ~/.fusesearch/logs
// and, outside serve mode, mirrored to stderr. Serve mode never writes to
// stderr or stdout because stdout carries the MCP protocol stream.
package logging
