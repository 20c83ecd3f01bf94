// Package jobs persists processing jobs, assets, subscribers, and the access
// audit log in SQLite, and exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, optimistic
// status updates, stuck-job recovery, and the queries the orchestrators and
// the retry sweeper are built on. Job rows carry a version counter; every
// status mutation goes through a compare-and-set update so two pollers can
// never double-complete the same job.
//
// Job records are never deleted by the pipeline itself, only superseded by a
// terminal status; they are retained for audit.
//
// Treat this package as the single source of truth for job semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package jobs
