package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sonarbridge/sonarbridge-mcp/internal/storage"
	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeBackendUnavailable = -32001 // Backend process missing or not running
	ErrorCodeAnalysisFailed     = -32002 // Backend analysis call failed
	ErrorCodeFindingNotFound    = -32003 // No finding matches the given rule key and line
	ErrorCodeNoQuickFix         = -32004 // Matching finding has no suggested fix
)

// handleAnalyzeFile handles the analyze_file tool invocation
func (s *Server) handleAnalyzeFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireAbsPath(args, "file_path")
	if err != nil {
		return nil, err
	}
	root := getStringDefault(args, "project_root", filepath.Dir(filePath))

	if err := s.ensureConnected(ctx); err != nil {
		return nil, backendError(err)
	}

	result, _, err := s.orch.AnalyzeFiles(ctx, root, []string{filePath})
	if err != nil {
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(findingsResponse(result, 1))), nil
}

// handleAnalyzeFiles handles the analyze_files tool invocation
func (s *Server) handleAnalyzeFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	paths, err := requireStringSlice(args, "file_paths")
	if err != nil {
		return nil, err
	}
	root, err := requireAbsPath(args, "project_root")
	if err != nil {
		return nil, err
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, backendError(err)
	}

	result, _, err := s.orch.AnalyzeFiles(ctx, root, paths)
	if err != nil {
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(findingsResponse(result, len(paths)))), nil
}

// handleAnalyzeDirectory handles the analyze_directory tool invocation
func (s *Server) handleAnalyzeDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	dir, err := requireAbsPath(args, "directory_path")
	if err != nil {
		return nil, err
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, backendError(err)
	}

	result, scanned, err := s.orch.AnalyzeDirectory(ctx, dir)
	if err != nil {
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(findingsResponse(result, scanned))), nil
}

// handleAnalyzeSnippet handles the analyze_snippet tool invocation
func (s *Server) handleAnalyzeSnippet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	fileName, err := requireString(args, "file_name")
	if err != nil {
		return nil, err
	}
	content, err := requireString(args, "content")
	if err != nil {
		return nil, err
	}
	root := getStringDefault(args, "project_root", s.cfg.WorkDir)

	if err := s.ensureConnected(ctx); err != nil {
		return nil, backendError(err)
	}

	result, err := s.orch.AnalyzeSnippet(ctx, root, fileName, content)
	if err != nil {
		if errors.Is(err, types.ErrEmptyContent) {
			return nil, newMCPError(ErrorCodeInvalidParams, "content cannot be empty", map[string]interface{}{
				"param": "content",
			})
		}
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(findingsResponse(result, 1))), nil
}

// handleApplyFix handles the apply_fix tool invocation
func (s *Server) handleApplyFix(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireAbsPath(args, "file_path")
	if err != nil {
		return nil, err
	}
	ruleKey, err := requireString(args, "rule_key")
	if err != nil {
		return nil, err
	}
	line := getIntDefault(args, "line", 0)
	if line < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "line must be a positive integer", map[string]interface{}{
			"param": "line",
			"value": line,
		})
	}
	root := getStringDefault(args, "project_root", filepath.Dir(filePath))

	if err := s.ensureConnected(ctx); err != nil {
		return nil, backendError(err)
	}

	outcome, err := s.orch.ApplyFix(ctx, root, filePath, ruleKey, line)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrFindingNotFound):
			return nil, newMCPError(ErrorCodeFindingNotFound, "no finding matches", map[string]interface{}{
				"rule_key": ruleKey,
				"line":     line,
			})
		case errors.Is(err, types.ErrNoQuickFix):
			return nil, newMCPError(ErrorCodeNoQuickFix, "finding has no suggested fix", map[string]interface{}{
				"rule_key": ruleKey,
				"line":     line,
			})
		}
		return nil, analysisError(err)
	}

	response := map[string]interface{}{
		"fixed":         true,
		"file_path":     filePath,
		"rule_key":      outcome.RuleKey,
		"fix_message":   outcome.Message,
		"edits_applied": outcome.EditsApplied,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleApplyAllFixes handles the apply_all_fixes tool invocation
func (s *Server) handleApplyAllFixes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireAbsPath(args, "file_path")
	if err != nil {
		return nil, err
	}
	root := getStringDefault(args, "project_root", filepath.Dir(filePath))

	if err := s.ensureConnected(ctx); err != nil {
		return nil, backendError(err)
	}

	outcome, err := s.orch.ApplyAllFixes(ctx, root, filePath)
	if err != nil {
		return nil, analysisError(err)
	}

	applied := make([]map[string]interface{}, 0, len(outcome.Applied))
	for _, fix := range outcome.Applied {
		applied = append(applied, map[string]interface{}{
			"rule_key":      fix.RuleKey,
			"fix_message":   fix.Message,
			"edits_applied": fix.EditsApplied,
		})
	}
	response := map[string]interface{}{
		"file_path":     outcome.FilePath,
		"applied":       applied,
		"applied_count": len(outcome.Applied),
		"skipped_count": outcome.Skipped,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListRules handles the list_rules tool invocation
func (s *Server) handleListRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	langFilter := types.Language(strings.ToUpper(getStringDefault(args, "language", "")))

	if err := s.ensureConnected(ctx); err != nil {
		return nil, backendError(err)
	}

	rules, err := s.orch.ListRules(ctx)
	if err != nil {
		return nil, analysisError(err)
	}

	out := make([]map[string]interface{}, 0, len(rules))
	for _, r := range rules {
		if langFilter != "" && r.Language != langFilter {
			continue
		}
		out = append(out, map[string]interface{}{
			"key":      r.Key,
			"name":     r.Name,
			"language": string(r.Language),
			"severity": string(r.Severity),
			"type":     string(r.Type),
		})
	}
	response := map[string]interface{}{
		"rules": out,
		"total": len(out),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	recent := getIntDefault(args, "recent_runs", 5)
	if recent < 0 || recent > 50 {
		return nil, newMCPError(ErrorCodeInvalidParams, "recent_runs must be between 0 and 50", map[string]interface{}{
			"param": "recent_runs",
			"value": recent,
		})
	}

	response := map[string]interface{}{
		"server_version":  ServerVersion,
		"session_state":   s.session.State().String(),
		"backend_path":    s.cfg.LauncherPath,
		"storage_dir":     s.cfg.StorageDir,
		"work_dir":        s.cfg.WorkDir,
		"history_backend": storage.DriverName,
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read run history", map[string]interface{}{
			"error": err.Error(),
		})
	}
	history := map[string]interface{}{
		"total_runs":     stats.TotalRuns,
		"failed_runs":    stats.FailedRuns,
		"total_findings": stats.TotalFindings,
	}
	if stats.LastRunAt != nil {
		history["last_run_at"] = stats.LastRunAt.Format("2006-01-02T15:04:05Z07:00")
	}
	response["history"] = history

	if recent > 0 {
		runs, err := s.store.RecentRuns(ctx, recent)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to read run history", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["recent_runs"] = formatRuns(runs)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Response shaping

// findingsResponse flattens an analysis result for tool output.
func findingsResponse(result *types.AnalysisResult, fileCount int) map[string]interface{} {
	findings := make([]map[string]interface{}, 0, len(result.Findings))
	for _, f := range result.Findings {
		findings = append(findings, map[string]interface{}{
			"rule_key":      f.RuleKey,
			"severity":      string(f.Severity),
			"type":          string(f.Type),
			"message":       f.Message,
			"file":          strings.TrimPrefix(f.FileURI, "file://"),
			"start_line":    f.TextRange.StartLine,
			"end_line":      f.TextRange.EndLine,
			"has_quick_fix": f.HasQuickFix(),
		})
	}
	response := map[string]interface{}{
		"findings":       findings,
		"total_findings": len(findings),
		"files_analyzed": fileCount,
	}
	if len(result.FailedFiles) > 0 {
		response["failed_files"] = result.FailedFiles
	}
	return response
}

func formatRuns(runs []*storage.AnalysisRun) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		entry := map[string]interface{}{
			"root_path":     run.RootPath,
			"file_count":    run.FileCount,
			"finding_count": run.FindingCount,
			"duration_ms":   run.DurationMS,
			"succeeded":     run.Succeeded,
			"created_at":    run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if run.ErrorMessage != nil {
			entry["error"] = *run.ErrorMessage
		}
		out = append(out, entry)
	}
	return out
}

// Error helpers

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// backendError maps a connection failure to a tool error.
func backendError(err error) error {
	return newMCPError(ErrorCodeBackendUnavailable, "analysis backend unavailable", map[string]interface{}{
		"error": err.Error(),
	})
}

// analysisError maps an orchestrator failure to a tool error,
// preserving the distinction between a dead session and a failed call.
func analysisError(err error) error {
	if errors.Is(err, types.ErrNotConnected) || errors.Is(err, types.ErrSessionClosed) {
		return backendError(err)
	}
	return newMCPError(ErrorCodeAnalysisFailed, "analysis failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// Parameter helpers

func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// requireAbsPath extracts a path parameter and checks it exists.
func requireAbsPath(args map[string]interface{}, key string) (string, error) {
	path, err := requireString(args, key)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		return "", newMCPError(ErrorCodeInvalidParams, key+" must be an absolute path", map[string]interface{}{
			"param": key,
			"value": path,
		})
	}
	if _, err := os.Stat(path); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  key,
			"reason": err.Error(),
		})
	}
	return path, nil
}

func requireStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, key+" must contain non-empty strings", map[string]interface{}{
				"param": key,
				"index": i,
			})
		}
		out[i] = s
	}
	return out, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
