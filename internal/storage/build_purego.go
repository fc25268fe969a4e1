//go:build purego || !sqlite_cgo
// +build purego !sqlite_cgo

package storage

// Compiled when building without CGO or without the sqlite_cgo tag. No C
// compiler required, which keeps cross-platform builds trivial.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
