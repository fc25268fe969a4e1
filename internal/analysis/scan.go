package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// skippedDirNames mirrors the exclusion globs the session reports to the
// backend, so a directory scan never feeds it files it would refuse.
var skippedDirNames = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"coverage":     true,
}

// statWorkers bounds the concurrent readability checks during a scan.
const statWorkers = 8

// CollectFiles walks root recursively and returns the absolute paths of
// every analyzable, readable file, sorted for deterministic request
// ordering. Dot-directories and dependency/output directories are
// skipped. Unreadable files are dropped from the result rather than
// failing the scan.
func CollectFiles(ctx context.Context, root string) ([]string, error) {
	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (skippedDirNames[name] || (len(name) > 1 && name[0] == '.')) {
				return filepath.SkipDir
			}
			return nil
		}
		if types.IsAnalyzable(path) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	var mu sync.Mutex
	var readable []string
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statWorkers)
	for _, path := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			f, err := os.Open(path)
			if err != nil {
				return nil // skip unreadable files
			}
			_ = f.Close()
			mu.Lock()
			readable = append(readable, path)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(readable)
	return readable, nil
}
