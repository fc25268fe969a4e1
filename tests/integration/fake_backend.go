package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sonarbridge/sonarbridge-mcp/internal/protocol"
	"github.com/sonarbridge/sonarbridge-mcp/internal/session"
	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// fakeAnalyzer stands in for the backend process. It evaluates a small
// fixed rule set against file content, and it reproduces the backend's
// caching behavior: content read during one analysis is reused for the
// next unless the cache invalidation protocol runs. Tests that skip
// invalidation therefore observe stale findings, exactly like the real
// backend.
type fakeAnalyzer struct {
	mu       sync.Mutex
	content  map[string]string // uri -> cached content
	scopes   map[string]*session.Scope
	analyses []string // analysis ids seen, in order
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		content: make(map[string]string),
		scopes:  make(map[string]*session.Scope),
	}
}

type fakeAnalyzeParams struct {
	ConfigurationScopeID string   `json:"configurationScopeId"`
	AnalysisID           string   `json:"analysisId"`
	FilesToAnalyze       []string `json:"filesToAnalyze"`
}

func (a *fakeAnalyzer) Call(_ context.Context, method string, params any, _ protocol.Class) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	switch method {
	case session.MethodAnalyzeFiles:
		var p fakeAnalyzeParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.analyses = append(a.analyses, p.AnalysisID)
		a.mu.Unlock()
		return a.analyze(p.FilesToAnalyze)
	case session.MethodListRules:
		return json.Marshal(map[string]any{"rules": ruleCatalog})
	default:
		return nil, fmt.Errorf("unexpected method %s", method)
	}
}

func (a *fakeAnalyzer) analyze(uris []string) (json.RawMessage, error) {
	result := types.AnalysisResult{Findings: []types.Finding{}, FailedFiles: []string{}}
	for _, uri := range uris {
		content, err := a.contentFor(uri)
		if err != nil {
			result.FailedFiles = append(result.FailedFiles, uri)
			continue
		}
		result.Findings = append(result.Findings, evaluateRules(uri, content)...)
	}
	return json.Marshal(result)
}

// contentFor returns cached content when present; the disk is consulted
// only on a cache miss.
func (a *fakeAnalyzer) contentFor(uri string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cached, ok := a.content[uri]; ok {
		return cached, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return "", err
	}
	a.content[uri] = string(data)
	return string(data), nil
}

func (a *fakeAnalyzer) EnsureScope(root string) (*session.Scope, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sc, ok := a.scopes[root]; ok {
		return sc, nil
	}
	sum := sha256.Sum256([]byte(root))
	sc := &session.Scope{
		ID:   hex.EncodeToString(sum[:4]),
		Name: filepath.Base(root),
		Root: root,
	}
	a.scopes[root] = sc
	return sc, nil
}

// InvalidateFile re-reads the file from disk, discarding the cached
// copy. This is the only way a fake analysis observes a disk mutation.
func (a *fakeAnalyzer) InvalidateFile(_ context.Context, _, absPath string) error {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.content[types.FileURI(absPath)] = string(data)
	return nil
}

func (a *fakeAnalyzer) NotifyFileAdded(_ context.Context, _, absPath string, content []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.content[types.FileURI(absPath)] = string(content)
	return nil
}

func (a *fakeAnalyzer) NotifyFileRemoved(_, absPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.content, types.FileURI(absPath))
	return nil
}

func (a *fakeAnalyzer) analysisIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.analyses...)
}

// Rule set

var ruleCatalog = []types.RuleDefinition{
	{Key: "javascript:S1854", Name: "Unused assignments should be removed", Language: types.LangJS, Severity: types.SeverityMajor, Type: types.TypeCodeSmell},
	{Key: "javascript:S2068", Name: "Hard-coded credentials are security-sensitive", Language: types.LangJS, Severity: types.SeverityBlocker, Type: types.TypeVulnerability},
	{Key: "javascript:S1145", Name: "Useless if(true) blocks should be removed", Language: types.LangJS, Severity: types.SeverityMajor, Type: types.TypeBug},
	{Key: "javascript:S3626", Name: "Jump statements should not be redundant", Language: types.LangJS, Severity: types.SeverityMinor, Type: types.TypeCodeSmell},
	{Key: "python:S1481", Name: "Unused local variables should be removed", Language: types.LangPython, Severity: types.SeverityMinor, Type: types.TypeCodeSmell},
}

// evaluateRules runs line-pattern rules over content. Fixable findings
// carry a quick fix that deletes the offending line.
func evaluateRules(uri, content string) []types.Finding {
	var findings []types.Finding
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		num := i + 1
		switch {
		case strings.Contains(line, "var unused"):
			findings = append(findings, lineFinding(uri, "javascript:S1854", types.SeverityMajor, types.TypeCodeSmell,
				"Remove this useless assignment to variable", num, withLineRemoval(num)))
		case strings.Contains(line, "password ="):
			findings = append(findings, lineFinding(uri, "javascript:S2068", types.SeverityBlocker, types.TypeVulnerability,
				"Review this hard-coded password", num))
		case strings.Contains(line, "if (true)"):
			findings = append(findings, lineFinding(uri, "javascript:S1145", types.SeverityMajor, types.TypeBug,
				"Remove this always-true condition", num))
		case strings.TrimSpace(line) == "return;" && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == "}":
			findings = append(findings, lineFinding(uri, "javascript:S3626", types.SeverityMinor, types.TypeCodeSmell,
				"Remove this redundant jump", num, withLineRemoval(num)))
		}
	}
	return findings
}

func lineFinding(uri, ruleKey string, sev types.Severity, typ types.FindingType, msg string, line int, fixes ...types.QuickFix) types.Finding {
	return types.Finding{
		RuleKey:    ruleKey,
		Severity:   sev,
		Type:       typ,
		Message:    msg,
		FileURI:    uri,
		TextRange:  types.TextRange{StartLine: line, EndLine: line},
		QuickFixes: fixes,
	}
}

// withLineRemoval builds a quick fix deleting the given line entirely.
func withLineRemoval(line int) types.QuickFix {
	return types.QuickFix{
		Message: "Remove the line",
		Edits: []types.FileEdit{{
			Range:   types.TextRange{StartLine: line, StartLineOffset: 0, EndLine: line + 1, EndLineOffset: 0},
			NewText: "",
		}},
	}
}
