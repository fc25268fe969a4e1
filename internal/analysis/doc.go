// Package analysis orchestrates analysis calls against the backend
// session and post-processes their results: issuing per-scope analysis
// requests with fresh correlation ids, locating findings for fix
// application, applying quick-fix edits to files on disk, and scanning
// directories for analyzable files.
//
// The orchestrator does not retry failed calls. Errors surface to the
// caller, who decides whether to retry after fixing the underlying cause
// (re-establishing the session, for one). Any path that mutates a file
// runs the session's cache invalidation protocol before the next
// analysis call; skipping it makes the backend serve stale findings.
package analysis
