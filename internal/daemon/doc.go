// Package daemon coordinates the long-running linotyped process: it enforces
// single-instance execution with a file lock, owns the workflow manager, and
// serves the HTTP API.
//
// Start acquires the lock, launches the workflow worker, and binds the API
// listener when paths.api_bind is set. Stop shuts both down and releases the
// lock; Close additionally closes the store.
//
// The API server is a plain net/http mux over the DTO services in
// internal/api. When paths.api_token is set every route except /api/health
// requires a matching bearer token.
package daemon
