// Package types contains the shared data model for the analysis bridge:
// client file descriptors exchanged with the backend, raw findings and
// quick fixes returned by analysis calls, language detection, and the
// sentinel errors used across package boundaries.
package types
