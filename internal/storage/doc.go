// Package storage persists analysis run history in SQLite. Raw findings
// are never stored; each run record is a summary (file count, finding
// counts by severity, duration, outcome) used by the status probe.
//
// Two drivers are supported behind build tags: the CGO driver
// (github.com/mattn/go-sqlite3) when built with the sqlite_cgo tag, and
// the pure Go driver (modernc.org/sqlite) otherwise, so the bridge
// cross-compiles without a C toolchain.
package storage
