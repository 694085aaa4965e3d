// Package activity provides the append-only activity log.
//
// Every mutating operation in the engine records an activity. Records are
// immutable once written; consumers (the security monitor, audit exports,
// system stats) only ever read. Two backends are provided: an in-memory
// store for process-lifetime deployments and a SQLite store for
// deployments that need the log to survive restarts.
package activity
