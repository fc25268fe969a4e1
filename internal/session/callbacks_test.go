package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestDescribeFile_FlagContract(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/main.ts": "const a = 1;\n"})
	sc := &Scope{ID: scopeID(root), Root: root}

	d, err := describeFile(sc, filepath.Join(root, "src", "main.ts"))
	require.NoError(t, err)

	assert.True(t, d.IsUserDefined)
	require.NotNil(t, d.Content)
	assert.Equal(t, "const a = 1;\n", *d.Content)
	assert.Equal(t, "src/main.ts", d.IDERelativePath)
	assert.Equal(t, types.LangTS, d.DetectedLanguage)
	assert.Equal(t, "UTF-8", d.Charset)
	assert.Equal(t, sc.ID, d.ConfigScopeID)
}

func TestCallbackListFiles_SkipsExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.js":                  "a\n",
		"lib/util.py":               "b\n",
		"node_modules/pkg/index.js": "ignored\n",
		".git/hooks/pre-commit.py":  "ignored\n",
		"vendor/dep/dep.go":         "ignored\n",
		"notes.txt":                 "not analyzable\n",
	})

	s := New(&Config{})
	sc, err := s.scopes.ensure(root, func(*Scope) error { return nil })
	require.NoError(t, err)

	res, err := s.callbackListFiles(mustJSON(t, scopeParams{ConfigScopeID: sc.ID}))
	require.NoError(t, err)

	lf := res.(listFilesResponse)
	var rels []string
	for _, f := range lf.Files {
		rels = append(rels, f.IDERelativePath)
		assert.True(t, f.IsUserDefined)
		assert.NotNil(t, f.Content)
	}
	assert.ElementsMatch(t, []string{"index.js", "lib/util.py"}, rels)
}

func TestCallbackListFiles_UnknownScope(t *testing.T) {
	s := New(&Config{})
	_, err := s.callbackListFiles(mustJSON(t, scopeParams{ConfigScopeID: "missing"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration scope")
}

func TestHandleCallback_UnknownMethodStillAnswers(t *testing.T) {
	s := New(&Config{})
	res, err := s.handleCallback("didChangeSomethingNew", mustJSON(t, map[string]string{}))
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
