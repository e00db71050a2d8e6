// Package logging builds the slog loggers used across linotype.
//
// Two output formats are supported: a human-oriented console format with
// key=value attributes, and JSON for machine consumption. File outputs are
// size-rotated.
package logging
