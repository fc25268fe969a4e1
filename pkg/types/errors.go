package types

import "errors"

// Cross-package sentinel errors
var (
	// ErrNotConnected is returned when an RPC is attempted while the
	// backend session is not in the Ready state
	ErrNotConnected = errors.New("not connected to analysis backend")
	// ErrSessionClosed is returned to every caller still waiting on a
	// response when the backend process exits
	ErrSessionClosed = errors.New("analysis session closed")
	// ErrBackendNotFound is returned when the backend launcher cannot be
	// located on disk
	ErrBackendNotFound = errors.New("analysis backend not found")
	// ErrEmptyContent is returned when a caller submits empty content for
	// an in-memory analysis
	ErrEmptyContent = errors.New("content cannot be empty")
	// ErrNoQuickFix is returned when a finding has no candidate fixes
	ErrNoQuickFix = errors.New("finding has no quick fix")
	// ErrFindingNotFound is returned when no finding matches the requested
	// rule key and location
	ErrFindingNotFound = errors.New("no matching finding")
)
