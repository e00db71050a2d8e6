// Package queue persists submissions, jobs, events, and assets in SQLite and
// exposes the lifecycle operations the workflow manager drives.
//
// The Store manages database connections, schema initialization, the
// compare-and-swap claim that guarantees at most one worker per job,
// heartbeat tracking, stale-claim recovery, and the guarded transitions that
// keep terminal jobs immutable. Job events are append-only.
//
// The database is the single source of truth for job state. Schema changes
// bump the version in schema.go; users delete the database to adopt the new
// schema.
package queue
