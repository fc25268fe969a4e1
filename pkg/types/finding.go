package types

// Severity is the backend's severity tag for a finding.
type Severity string

const (
	SeverityBlocker  Severity = "BLOCKER"
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityInfo     Severity = "INFO"
)

// FindingType is the backend's category tag for a finding.
type FindingType string

const (
	TypeCodeSmell       FindingType = "CODE_SMELL"
	TypeBug             FindingType = "BUG"
	TypeVulnerability   FindingType = "VULNERABILITY"
	TypeSecurityHotspot FindingType = "SECURITY_HOTSPOT"
)

// TextRange locates a finding or an edit within a file. Lines are
// 1-based, offsets are 0-based character offsets within the line,
// matching the backend's convention.
type TextRange struct {
	StartLine       int `json:"startLine"`
	StartLineOffset int `json:"startLineOffset"`
	EndLine         int `json:"endLine"`
	EndLineOffset   int `json:"endLineOffset"`
}

// FileEdit is a single text replacement within a quick fix.
type FileEdit struct {
	Range   TextRange `json:"range"`
	NewText string    `json:"newText"`
}

// QuickFix is one candidate automated fix for a finding, as an ordered
// list of text replacements.
type QuickFix struct {
	Message string     `json:"message"`
	Edits   []FileEdit `json:"edits"`
}

// Finding is a raw result item from one analysis call. Findings are
// ephemeral: each analysis call produces a fresh list and nothing here is
// persisted across calls.
type Finding struct {
	RuleKey    string      `json:"ruleKey"`
	Severity   Severity    `json:"severity"`
	Type       FindingType `json:"type"`
	Message    string      `json:"message"`
	FileURI    string      `json:"fileUri"`
	TextRange  TextRange   `json:"textRange"`
	QuickFixes []QuickFix  `json:"quickFixes,omitempty"`
}

// HasQuickFix reports whether the finding carries at least one candidate
// fix with at least one edit.
func (f Finding) HasQuickFix() bool {
	return len(f.QuickFixes) > 0 && len(f.QuickFixes[0].Edits) > 0
}

// AnalysisResult is the raw outcome of one analysis call.
type AnalysisResult struct {
	Findings    []Finding `json:"issues"`
	FailedFiles []string  `json:"failedAnalysisFiles"`
}

// RuleDefinition describes one rule known to the backend's standalone
// rule set.
type RuleDefinition struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Language Language    `json:"language"`
	Severity Severity    `json:"severity"`
	Type     FindingType `json:"type"`
}
