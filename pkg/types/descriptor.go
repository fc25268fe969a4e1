package types

import (
	"fmt"
	"path/filepath"
)

// FileDescriptor is the unit exchanged with the backend in the listFiles
// callback response and in file-system-update notifications.
//
// Two fields are load-bearing in non-obvious ways, both discovered
// empirically:
//   - IsUserDefined must be explicitly true or the backend excludes the
//     file from analysis entirely, returning empty results with no error.
//   - Content, when nil, makes the backend read from its own disk view,
//     which may be stale after an external mutation. Any descriptor built
//     to announce a content change must carry the literal bytes.
type FileDescriptor struct {
	URI              string   `json:"uri"`
	IDERelativePath  string   `json:"ideRelativePath"`
	ConfigScopeID    string   `json:"configScopeId"`
	IsTest           *bool    `json:"isTest"`
	Charset          string   `json:"charset"`
	FSPath           string   `json:"fsPath"`
	Content          *string  `json:"content"`
	DetectedLanguage Language `json:"detectedLanguage,omitempty"`
	IsUserDefined    bool     `json:"isUserDefined"`
}

// FileURI converts an absolute filesystem path to the file:// form the
// backend expects.
func FileURI(absPath string) string {
	return "file://" + filepath.ToSlash(absPath)
}

// NewFileDescriptor builds a descriptor for absPath under the scope rooted
// at root. content may be nil for listing purposes where the backend will
// be handed bytes through a later callback; callers announcing a mutation
// must pass the re-read bytes.
func NewFileDescriptor(scopeID, root, absPath string, content []byte) (FileDescriptor, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("path %s is not under scope root %s: %w", absPath, root, err)
	}
	d := FileDescriptor{
		URI:              FileURI(absPath),
		IDERelativePath:  filepath.ToSlash(rel),
		ConfigScopeID:    scopeID,
		Charset:          "UTF-8",
		FSPath:           absPath,
		DetectedLanguage: DetectLanguage(absPath),
		IsUserDefined:    true,
	}
	if content != nil {
		s := string(content)
		d.Content = &s
	}
	return d, nil
}

// Validate enforces the descriptor flag contract before a descriptor is
// allowed onto the wire.
func (d FileDescriptor) Validate(requireContent bool) error {
	if !d.IsUserDefined {
		return fmt.Errorf("descriptor for %s: isUserDefined must be true", d.FSPath)
	}
	if requireContent && d.Content == nil {
		return fmt.Errorf("descriptor for %s: content must not be null for a content update", d.FSPath)
	}
	return nil
}
