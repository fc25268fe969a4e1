package session

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// maxCallbackFileSize caps the content the listFiles callback loads per
// file. The backend requests its own reads for anything we omit.
const maxCallbackFileSize = 1 << 20

// contentReaders bounds concurrent file reads while serving listFiles.
const contentReaders = 8

// defaultFileExclusions are the glob patterns returned from the
// getFileExclusions callback and mirrored by our own directory walker.
var defaultFileExclusions = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
	"**/target/**",
	"**/coverage/**",
}

// excludedDirNames is the walker-side counterpart of the exclusion globs.
var excludedDirNames = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"coverage":     true,
}

// handleCallback answers one inbound backend request. The backend is a
// synchronous peer: every request, recognized or not, must get some
// response or it stalls indefinitely.
func (s *Session) handleCallback(method string, params json.RawMessage) (any, error) {
	switch method {
	case methodListFiles:
		return s.callbackListFiles(params)
	case methodGetBaseDir:
		return s.callbackGetBaseDir(params)
	case methodGetFileExclusions:
		return s.callbackGetFileExclusions(params)
	case methodGetInferredProps:
		return s.callbackGetInferredProperties(params)
	default:
		log.Printf("session: answering unknown backend request %s with empty object", method)
		return struct{}{}, nil
	}
}

type scopeParams struct {
	ConfigScopeID string `json:"configScopeId"`
}

func (s *Session) resolveScope(raw json.RawMessage) (*Scope, error) {
	var p scopeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode callback params: %w", err)
	}
	sc, ok := s.scopes.lookup(p.ConfigScopeID)
	if !ok {
		return nil, fmt.Errorf("unknown configuration scope %q", p.ConfigScopeID)
	}
	return sc, nil
}

type listFilesResponse struct {
	Files []types.FileDescriptor `json:"files"`
}

// callbackListFiles enumerates every analyzable file under the scope
// root. Content is the actual file bytes and isUserDefined is true on
// every descriptor: without both the backend silently treats the project
// as empty.
func (s *Session) callbackListFiles(raw json.RawMessage) (any, error) {
	sc, err := s.resolveScope(raw)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(sc.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			name := d.Name()
			if path != sc.Root && (excludedDirNames[name] || (len(name) > 1 && name[0] == '.')) {
				return filepath.SkipDir
			}
			return nil
		}
		if types.IsAnalyzable(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk scope %s: %w", sc.ID, err)
	}

	files := make([]types.FileDescriptor, len(paths))
	var g errgroup.Group
	g.SetLimit(contentReaders)
	for i, path := range paths {
		g.Go(func() error {
			d, err := describeFile(sc, path)
			if err != nil {
				return err
			}
			files[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listFilesResponse{Files: files}, nil
}

// describeFile builds a content-bearing descriptor for one file.
func describeFile(sc *Scope, path string) (types.FileDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.FileDescriptor{}, fmt.Errorf("stat %s: %w", path, err)
	}
	var content []byte
	if info.Size() <= maxCallbackFileSize {
		content, err = os.ReadFile(path)
		if err != nil {
			return types.FileDescriptor{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	d, err := types.NewFileDescriptor(sc.ID, sc.Root, path, content)
	if err != nil {
		return types.FileDescriptor{}, err
	}
	if err := d.Validate(false); err != nil {
		return types.FileDescriptor{}, err
	}
	return d, nil
}

type baseDirResponse struct {
	BaseDir string `json:"baseDir"`
}

func (s *Session) callbackGetBaseDir(raw json.RawMessage) (any, error) {
	sc, err := s.resolveScope(raw)
	if err != nil {
		return nil, err
	}
	return baseDirResponse{BaseDir: sc.Root}, nil
}

// fileExclusionsResponse's key is load-bearing: the backend dereferences
// "fileExclusionPatterns" without a null check, so a synonym key causes a
// null-pointer failure inside it.
type fileExclusionsResponse struct {
	FileExclusionPatterns []string `json:"fileExclusionPatterns"`
}

func (s *Session) callbackGetFileExclusions(raw json.RawMessage) (any, error) {
	if _, err := s.resolveScope(raw); err != nil {
		return nil, err
	}
	return fileExclusionsResponse{FileExclusionPatterns: defaultFileExclusions}, nil
}

type inferredPropertiesResponse struct {
	Properties map[string]string `json:"properties"`
}

func (s *Session) callbackGetInferredProperties(raw json.RawMessage) (any, error) {
	if _, err := s.resolveScope(raw); err != nil {
		return nil, err
	}
	return inferredPropertiesResponse{Properties: map[string]string{}}, nil
}
