// Command linotype is the operator CLI for the linotype publication queue.
// It talks directly to the job store and services configured in
// ~/.config/linotype/config.toml: submitting documents, listing and
// inspecting jobs, cancelling or requeueing them, and managing configuration.
package main
