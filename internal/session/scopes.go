package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
)

// Scope is one registered configuration scope: a logical project identity
// the backend groups files and settings under. Scopes live for the
// lifetime of the backend session and are never explicitly destroyed.
type Scope struct {
	ID   string
	Name string
	Root string
}

// scopeID derives the stable scope identifier for a project root.
func scopeID(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return hex.EncodeToString(sum[:8])
}

// scopeTable maps project roots to their registered scopes. Exactly one
// scope exists per distinct root per session; the table's lock makes the
// check-then-insert atomic so concurrent callers cannot register the same
// root twice.
type scopeTable struct {
	mu     sync.Mutex
	byRoot map[string]*Scope
	byID   map[string]*Scope
}

func newScopeTable() *scopeTable {
	return &scopeTable{
		byRoot: make(map[string]*Scope),
		byID:   make(map[string]*Scope),
	}
}

// ensure returns the scope for root, creating it if needed. The register
// callback runs under the table lock only for newly created scopes, so
// the registration notification is issued exactly once per root.
func (t *scopeTable) ensure(root string, register func(*Scope) error) (*Scope, error) {
	root = filepath.Clean(root)

	t.mu.Lock()
	defer t.mu.Unlock()

	if sc, ok := t.byRoot[root]; ok {
		return sc, nil
	}
	sc := &Scope{
		ID:   scopeID(root),
		Name: filepath.Base(root),
		Root: root,
	}
	if err := register(sc); err != nil {
		return nil, fmt.Errorf("register scope for %s: %w", root, err)
	}
	t.byRoot[root] = sc
	t.byID[sc.ID] = sc
	return sc, nil
}

// lookup resolves a scope by id, as received in backend callbacks.
func (t *scopeTable) lookup(id string) (*Scope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sc, ok := t.byID[id]
	return sc, ok
}

// reset drops all scopes. Called when the session disconnects: scope ids
// are only meaningful to the backend process that acknowledged them.
func (t *scopeTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byRoot = make(map[string]*Scope)
	t.byID = make(map[string]*Scope)
}
