package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// analyzeFileTool returns the tool definition for analyze_file
func analyzeFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_file",
		Description: "Run static analysis on a single file and return its findings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the file to analyze",
				},
				"project_root": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root (defaults to the file's directory)",
				},
			},
			Required: []string{"file_path"},
		},
	}
}

// analyzeFilesTool returns the tool definition for analyze_files
func analyzeFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_files",
		Description: "Run static analysis on a batch of files in one pass and return combined findings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_paths": map[string]interface{}{
					"type":        "array",
					"description": "Absolute paths to the files to analyze",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"project_root": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root containing the files",
				},
			},
			Required: []string{"file_paths", "project_root"},
		},
	}
}

// analyzeDirectoryTool returns the tool definition for analyze_directory
func analyzeDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_directory",
		Description: "Recursively analyze every supported file under a directory (dependency and build directories are skipped)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"directory_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory to analyze",
				},
			},
			Required: []string{"directory_path"},
		},
	}
}

// analyzeSnippetTool returns the tool definition for analyze_snippet
func analyzeSnippetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_snippet",
		Description: "Analyze in-memory code without a pre-existing file; the file name's extension selects the language",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_name": map[string]interface{}{
					"type":        "string",
					"description": "File name with an extension identifying the language (e.g. snippet.js)",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Source code to analyze",
				},
				"project_root": map[string]interface{}{
					"type":        "string",
					"description": "Project root to attribute the snippet to (defaults to a scratch directory)",
				},
			},
			Required: []string{"file_name", "content"},
		},
	}
}

// applyFixTool returns the tool definition for apply_fix
func applyFixTool() mcp.Tool {
	return mcp.Tool{
		Name:        "apply_fix",
		Description: "Apply the suggested quick fix for one finding to the file on disk",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the file containing the finding",
				},
				"rule_key": map[string]interface{}{
					"type":        "string",
					"description": "Rule key of the finding to fix (e.g. javascript:S3516)",
				},
				"line": map[string]interface{}{
					"type":        "integer",
					"description": "Start line of the finding (1-based)",
					"minimum":     1,
				},
				"project_root": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root (defaults to the file's directory)",
				},
			},
			Required: []string{"file_path", "rule_key", "line"},
		},
	}
}

// applyAllFixesTool returns the tool definition for apply_all_fixes
func applyAllFixesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "apply_all_fixes",
		Description: "Apply every available quick fix in a file in one pass",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the file to fix",
				},
				"project_root": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root (defaults to the file's directory)",
				},
			},
			Required: []string{"file_path"},
		},
	}
}

// listRulesTool returns the tool definition for list_rules
func listRulesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_rules",
		Description: "List the analysis rules the backend evaluates, optionally filtered by language",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Language key to filter by (e.g. JS, TS, PYTHON, GO)",
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report backend session state, configuration, and recent analysis history",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"recent_runs": map[string]interface{}{
					"type":        "integer",
					"description": "How many recent analysis runs to include (0-50)",
					"default":     5,
					"minimum":     0,
					"maximum":     50,
				},
			},
		},
	}
}
