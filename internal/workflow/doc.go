// Package workflow drives queued publication jobs through the pipeline.
//
// The Manager polls the store, claims the oldest runnable job with a
// compare-and-swap update, and walks it through the convert, illustrate, and
// publish stages from wherever its stage cursor points. Heartbeats keep
// claimed jobs visibly alive; a reclaimer returns jobs whose worker died to
// the retry pool. Failures are classified into transient (scheduled for
// another attempt with exponential backoff) and permanent (terminal failure),
// and every decision lands in the job's event trail.
//
// Cancellation is cooperative for in-flight jobs: the store flags the job and
// the Manager honors the flag at the next stage boundary.
package workflow
