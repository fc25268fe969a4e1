package analysis

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// FixOutcome reports one applied quick fix.
type FixOutcome struct {
	RuleKey      string `json:"rule_key"`
	Message      string `json:"message"`
	EditsApplied int    `json:"edits_applied"`
}

// BatchFixOutcome reports an apply-all pass over one file.
type BatchFixOutcome struct {
	Applied  []FixOutcome `json:"applied"`
	Skipped  int          `json:"skipped"` // findings without a quick fix
	FilePath string       `json:"file_path"`
}

// ApplyFix analyzes filePath, locates the finding matching ruleKey and
// line, applies its first candidate fix's edits to the file on disk, and
// runs the cache invalidation protocol so the next analysis observes the
// mutation.
func (o *Orchestrator) ApplyFix(ctx context.Context, root, filePath, ruleKey string, line int) (*FixOutcome, error) {
	abs, err := validateFile(filePath)
	if err != nil {
		return nil, err
	}
	result, sc, err := o.AnalyzeFiles(ctx, root, []string{abs})
	if err != nil {
		return nil, err
	}

	finding, ok := findFinding(result.Findings, types.FileURI(abs), ruleKey, line)
	if !ok {
		return nil, fmt.Errorf("%w: rule %s at line %d in %s", types.ErrFindingNotFound, ruleKey, line, abs)
	}
	if !finding.HasQuickFix() {
		return nil, fmt.Errorf("%w: rule %s at line %d", types.ErrNoQuickFix, ruleKey, line)
	}

	fix := finding.QuickFixes[0]
	if err := applyEditsToFile(abs, fix.Edits); err != nil {
		return nil, err
	}
	if err := o.backend.InvalidateFile(ctx, sc.ID, abs); err != nil {
		return nil, fmt.Errorf("fix applied but cache invalidation failed, findings may be stale: %w", err)
	}
	return &FixOutcome{RuleKey: finding.RuleKey, Message: fix.Message, EditsApplied: len(fix.Edits)}, nil
}

// ApplyAllFixes analyzes filePath and applies the first candidate fix of
// every fixable finding in a single pass, then invalidates once. Within
// the pass, edits are applied in descending start-line order so earlier
// replacements cannot invalidate the offsets of later ones.
func (o *Orchestrator) ApplyAllFixes(ctx context.Context, root, filePath string) (*BatchFixOutcome, error) {
	abs, err := validateFile(filePath)
	if err != nil {
		return nil, err
	}
	result, sc, err := o.AnalyzeFiles(ctx, root, []string{abs})
	if err != nil {
		return nil, err
	}

	uri := types.FileURI(abs)
	out := &BatchFixOutcome{Applied: []FixOutcome{}, FilePath: abs}
	var fixable []types.Finding
	for _, f := range result.Findings {
		if f.FileURI != uri {
			continue
		}
		if f.HasQuickFix() {
			fixable = append(fixable, f)
		} else {
			out.Skipped++
		}
	}
	if len(fixable) == 0 {
		return out, nil
	}

	// Descending by start line; ties broken by descending offset.
	sort.Slice(fixable, func(i, j int) bool {
		ri, rj := fixable[i].TextRange, fixable[j].TextRange
		if ri.StartLine != rj.StartLine {
			return ri.StartLine > rj.StartLine
		}
		return ri.StartLineOffset > rj.StartLineOffset
	})

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	for _, f := range fixable {
		fix := f.QuickFixes[0]
		patched, err := ApplyEdits(content, fix.Edits)
		if err != nil {
			return nil, fmt.Errorf("apply fix for %s: %w", f.RuleKey, err)
		}
		content = patched
		out.Applied = append(out.Applied, FixOutcome{
			RuleKey:      f.RuleKey,
			Message:      fix.Message,
			EditsApplied: len(fix.Edits),
		})
	}
	if err := writeFilePreservingMode(abs, content); err != nil {
		return nil, err
	}
	if err := o.backend.InvalidateFile(ctx, sc.ID, abs); err != nil {
		return nil, fmt.Errorf("fixes applied but cache invalidation failed, findings may be stale: %w", err)
	}
	return out, nil
}

// applyEditsToFile rewrites path with the given edits applied.
func applyEditsToFile(path string, edits []types.FileEdit) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	patched, err := ApplyEdits(content, edits)
	if err != nil {
		return err
	}
	return writeFilePreservingMode(path, patched)
}

// findFinding matches by file, rule key, and start line.
func findFinding(findings []types.Finding, uri, ruleKey string, line int) (types.Finding, bool) {
	for _, f := range findings {
		if f.FileURI == uri && f.RuleKey == ruleKey && f.TextRange.StartLine == line {
			return f, true
		}
	}
	return types.Finding{}, false
}

// ApplyEdits applies text-replacement edits to content. Edits are
// applied in descending range order regardless of input order, so each
// replacement leaves the offsets of the remaining ones intact.
func ApplyEdits(content []byte, edits []types.FileEdit) ([]byte, error) {
	sorted := make([]types.FileEdit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Range, sorted[j].Range
		if ri.StartLine != rj.StartLine {
			return ri.StartLine > rj.StartLine
		}
		return ri.StartLineOffset > rj.StartLineOffset
	})

	text := string(content)
	for _, e := range sorted {
		start, err := byteOffset(text, e.Range.StartLine, e.Range.StartLineOffset)
		if err != nil {
			return nil, err
		}
		end, err := byteOffset(text, e.Range.EndLine, e.Range.EndLineOffset)
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, fmt.Errorf("edit range ends before it starts (%d..%d)", start, end)
		}
		text = text[:start] + e.NewText + text[end:]
	}
	return []byte(text), nil
}

// byteOffset converts a 1-based line and 0-based in-line offset to a
// byte offset into text.
func byteOffset(text string, line, col int) (int, error) {
	if line < 1 || col < 0 {
		return 0, fmt.Errorf("invalid position %d:%d", line, col)
	}
	offset := 0
	for l := 1; l < line; l++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return 0, fmt.Errorf("line %d is past end of file", line)
		}
		offset += nl + 1
	}
	lineEnd := len(text)
	if nl := strings.IndexByte(text[offset:], '\n'); nl >= 0 {
		lineEnd = offset + nl
	}
	if offset+col > lineEnd {
		return 0, fmt.Errorf("column %d is past end of line %d", col, line)
	}
	return offset + col, nil
}

func writeFilePreservingMode(path string, content []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
