// Package protocol implements the wire layer shared with the analysis
// backend: Content-Length framing over a byte stream, JSON-RPC 2.0
// message classification, and the outstanding-call table correlating our
// outgoing requests with their eventual responses.
//
// # Framing
//
// Each frame is a header block terminated by a blank line, followed by
// exactly Content-Length bytes of UTF-8 JSON:
//
//	Content-Length: 52\r\n
//	\r\n
//	{"jsonrpc":"2.0","id":1,"method":"initialize", ...}
//
// The Framer buffers partial input, so frames may be split across any
// chunk boundaries. A payload that fails JSON parsing is the caller's
// problem to log and drop; frame boundaries stay synchronized because the
// length is declared independently of content validity.
//
// # Classification
//
// The backend is a bi-directional peer: it issues its own requests to us
// while we have requests outstanding to it, all on one ordered stream.
// The sole discriminator is field presence:
//
//	id + method  → request from the peer
//	id, no method → response to one of our calls
//	method, no id → notification
//
// The two id spaces are independent (both sides allocate ids freely), so
// our outstanding-call table is keyed only by ids we generated and
// inbound request ids are echoed back verbatim, never recorded.
package protocol
