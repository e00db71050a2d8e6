// Package config loads, normalizes, and validates the TOML configuration
// consumed by the daemon and CLI.
//
// Load applies defaults first, then file values, then environment fallbacks
// for secrets, so a minimal config file stays minimal.
package config
