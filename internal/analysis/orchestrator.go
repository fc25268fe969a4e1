package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sonarbridge/sonarbridge-mcp/internal/protocol"
	"github.com/sonarbridge/sonarbridge-mcp/internal/session"
	"github.com/sonarbridge/sonarbridge-mcp/internal/storage"
	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// Backend is the slice of the session the orchestrator depends on.
type Backend interface {
	Call(ctx context.Context, method string, params any, class protocol.Class) (json.RawMessage, error)
	EnsureScope(root string) (*session.Scope, error)
	InvalidateFile(ctx context.Context, scopeID, absPath string) error
	NotifyFileAdded(ctx context.Context, scopeID, absPath string, content []byte) error
	NotifyFileRemoved(scopeID, absPath string) error
}

// Orchestrator issues analysis requests and shapes their results. The
// optional store records run history for the status probe; a nil store
// disables recording.
type Orchestrator struct {
	backend Backend
	store   storage.Store
}

// New builds an orchestrator. store may be nil.
func New(backend Backend, store storage.Store) *Orchestrator {
	return &Orchestrator{backend: backend, store: store}
}

type analyzeParams struct {
	ConfigurationScopeID    string            `json:"configurationScopeId"`
	AnalysisID              string            `json:"analysisId"`
	FilesToAnalyze          []string          `json:"filesToAnalyze"`
	ExtraProperties         map[string]string `json:"extraProperties"`
	ShouldFetchServerIssues bool              `json:"shouldFetchServerIssues"`
	StartTime               int64             `json:"startTime"`
}

// AnalyzeFiles analyzes the given files under the project rooted at
// root. Paths are validated before any RPC is attempted; the scope is
// created and registered lazily on first use of the root.
func (o *Orchestrator) AnalyzeFiles(ctx context.Context, root string, paths []string) (*types.AnalysisResult, *session.Scope, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no files to analyze")
	}
	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := validateFile(p)
		if err != nil {
			return nil, nil, err
		}
		abs[i] = a
	}

	sc, err := o.backend.EnsureScope(root)
	if err != nil {
		return nil, nil, err
	}

	uris := make([]string, len(abs))
	for i, a := range abs {
		uris[i] = types.FileURI(a)
	}

	start := time.Now()
	params := analyzeParams{
		ConfigurationScopeID:    sc.ID,
		AnalysisID:              uuid.NewString(),
		FilesToAnalyze:          uris,
		ExtraProperties:         map[string]string{},
		ShouldFetchServerIssues: false,
		StartTime:               start.UnixMilli(),
	}

	raw, err := o.backend.Call(ctx, session.MethodAnalyzeFiles, params, protocol.ClassAnalysis)
	if err != nil {
		o.record(ctx, sc, params.AnalysisID, len(abs), nil, time.Since(start), err)
		return nil, sc, err
	}

	var result types.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, sc, fmt.Errorf("decode analysis result: %w", err)
	}
	o.record(ctx, sc, params.AnalysisID, len(abs), &result, time.Since(start), nil)
	return &result, sc, nil
}

// AnalyzeSnippet analyzes in-memory content by writing it to a transient
// file, analyzing, and deleting it. The file must live under the project
// root so the backend's listFiles callback can discover it.
func (o *Orchestrator) AnalyzeSnippet(ctx context.Context, root, fileName, content string) (*types.AnalysisResult, error) {
	if content == "" {
		return nil, types.ErrEmptyContent
	}
	rootAbs, err := validateDir(root)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(fileName)
	if ext == "" {
		return nil, fmt.Errorf("file name %q has no extension to detect a language from", fileName)
	}

	tmpName := fmt.Sprintf(".sonarbridge-%s%s", uuid.NewString()[:8], ext)
	tmpPath := filepath.Join(rootAbs, tmpName)
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("write transient file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	sc, err := o.backend.EnsureScope(rootAbs)
	if err != nil {
		return nil, err
	}
	if err := o.backend.NotifyFileAdded(ctx, sc.ID, tmpPath, []byte(content)); err != nil {
		return nil, err
	}
	defer func() {
		if rerr := o.backend.NotifyFileRemoved(sc.ID, tmpPath); rerr != nil {
			log.Printf("analysis: failed to announce removal of %s: %v", tmpPath, rerr)
		}
	}()

	result, _, err := o.AnalyzeFiles(ctx, rootAbs, []string{tmpPath})
	return result, err
}

// AnalyzeDirectory scans root recursively and analyzes every analyzable
// file found.
func (o *Orchestrator) AnalyzeDirectory(ctx context.Context, root string) (*types.AnalysisResult, int, error) {
	rootAbs, err := validateDir(root)
	if err != nil {
		return nil, 0, err
	}
	paths, err := CollectFiles(ctx, rootAbs)
	if err != nil {
		return nil, 0, err
	}
	if len(paths) == 0 {
		return &types.AnalysisResult{Findings: []types.Finding{}, FailedFiles: []string{}}, 0, nil
	}
	result, _, err := o.AnalyzeFiles(ctx, rootAbs, paths)
	return result, len(paths), err
}

type listRulesResponse struct {
	Rules []types.RuleDefinition `json:"rules"`
}

// ListRules fetches the backend's standalone rule definitions.
func (o *Orchestrator) ListRules(ctx context.Context) ([]types.RuleDefinition, error) {
	raw, err := o.backend.Call(ctx, session.MethodListRules, struct{}{}, protocol.ClassControl)
	if err != nil {
		return nil, err
	}
	var resp listRulesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode rule definitions: %w", err)
	}
	return resp.Rules, nil
}

// record persists a run summary, best effort.
func (o *Orchestrator) record(ctx context.Context, sc *session.Scope, analysisID string, fileCount int, result *types.AnalysisResult, elapsed time.Duration, callErr error) {
	if o.store == nil {
		return
	}
	run := &storage.AnalysisRun{
		ScopeID:    sc.ID,
		AnalysisID: analysisID,
		RootPath:   sc.Root,
		FileCount:  fileCount,
		DurationMS: elapsed.Milliseconds(),
		Succeeded:  callErr == nil,
	}
	if callErr != nil {
		msg := callErr.Error()
		run.ErrorMessage = &msg
	}
	if result != nil {
		run.FindingCount = len(result.Findings)
		run.FailedCount = len(result.FailedFiles)
		for _, f := range result.Findings {
			switch f.Severity {
			case types.SeverityBlocker:
				run.Blocker++
			case types.SeverityCritical:
				run.Critical++
			case types.SeverityMajor:
				run.Major++
			case types.SeverityMinor:
				run.Minor++
			case types.SeverityInfo:
				run.Info++
			}
		}
	}
	if err := o.store.RecordRun(ctx, run); err != nil {
		log.Printf("analysis: failed to record run %s: %v", analysisID, err)
	}
}

// validateFile resolves and checks a file path before any RPC is issued.
func validateFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("path does not exist: %s", abs)
	}
	if err != nil {
		return "", fmt.Errorf("path is not readable: %s: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", abs)
	}
	return abs, nil
}

func validateDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("path does not exist: %s", abs)
	}
	if err != nil {
		return "", fmt.Errorf("path is not readable: %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", abs)
	}
	return abs, nil
}
