// Package session owns the lifecycle of the external analysis backend:
// process spawn, the capability handshake, configuration scope
// registration, the callback handlers the backend requires from its
// client, and the cache invalidation protocol for externally mutated
// files.
//
// # State machine
//
//	Disconnected → (Connect) → Handshaking → (initialize ack) → Ready
//	Ready → (process exit | Disconnect) → Disconnected
//
// Every RPC send other than the handshake itself is only valid in Ready
// and fails fast with types.ErrNotConnected otherwise; nothing is queued.
//
// # Bi-directionality
//
// The backend is a peer, not just a server: while our calls are
// outstanding it issues its own requests (listFiles, getBaseDir,
// getFileExclusions, getInferredAnalysisProperties) that must each get a
// response or the backend stalls, since it is a synchronous RPC peer.
// Inbound requests are dispatched off the read loop so a slow handler
// cannot block response delivery for our own calls.
//
// # Cache invalidation
//
// The backend caches per-file analysis aggressively and its ordinary
// editor-document notifications do not invalidate that cache after an
// external file mutation. InvalidateFile implements the sequence that
// does: mark the file open, send a file-system update carrying the
// re-read content with the required descriptor flags, then wait a
// settling delay before the next analysis call. See invalidate.go.
package session
