// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal queue models into transport-friendly DTOs so
// consumers never couple to the store's types.
//
// # Key Types
//
// Job: transport representation of a publication job with its attempt
// counters, stage cursor, and published post reference.
//
// StatusReport: a job (or a rejected submission that never produced one)
// together with its ordered event trail.
//
// WorkflowStatus: daemon running state, queue stats, stage health, and the
// last job touched.
//
// # Converters
//
// FromJob translates queue.Job, FromEvent passes event payloads through as
// json.RawMessage to avoid double-encoding, and FromStatusSummary flattens
// workflow.StatusSummary with stage health in pipeline order.
//
// # Design Notes
//
// JSON tags use snake_case to match the event payloads already stored in the
// job trail. Timestamps use RFC3339 with milliseconds. Internal enums
// (queue.JobStatus, queue.Stage) are exposed as lowercase strings.
package api
