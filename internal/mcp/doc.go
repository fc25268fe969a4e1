// Package mcp exposes the analysis backend to MCP clients over stdio.
//
// The server registers the tool surface (analyze_file, analyze_files,
// analyze_directory, analyze_snippet, apply_fix, apply_all_fixes,
// list_rules, get_status) and translates tool invocations into
// orchestrator calls. The backend process is started lazily on the
// first tool that needs it, so the MCP handshake succeeds even when
// the backend distribution is not installed yet; tools then report the
// missing backend as a structured error instead.
//
// stdout belongs to the MCP transport. All diagnostics go to stderr.
package mcp
