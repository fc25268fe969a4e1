package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.js":                   "x",
		"src/service.py":           "x",
		"src/deep/handler.ts":      "x",
		"node_modules/a/index.js":  "x",
		"vendor/lib/lib.go":        "x",
		"dist/bundle.js":           "x",
		".hidden/secret.py":        "x",
		"README.md":                "not analyzable",
		"Dockerfile":               "FROM scratch",
		"binary.exe":               "x",
	})

	paths, err := CollectFiles(context.Background(), root)
	require.NoError(t, err)

	var rels []string
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{
		"Dockerfile",
		"app.js",
		"src/deep/handler.ts",
		"src/service.py",
	}, rels)
}

func TestCollectFiles_EmptyDir(t *testing.T) {
	paths, err := CollectFiles(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, paths)
}
