package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonarbridge/sonarbridge-mcp/internal/protocol"
	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// fakeBackend drives the session through in-memory pipes, playing the
// backend's side of the wire protocol.
type fakeBackend struct {
	sessionStdin  io.WriteCloser
	sessionStdout io.Reader

	wMu sync.Mutex
	w   io.WriteCloser

	fromSession chan *protocol.Message
}

func newFakeBackend() *fakeBackend {
	inR, inW := io.Pipe()   // session writes, backend reads
	outR, outW := io.Pipe() // backend writes, session reads
	fb := &fakeBackend{
		sessionStdin:  inW,
		sessionStdout: outR,
		w:             outW,
		fromSession:   make(chan *protocol.Message, 64),
	}
	go fb.readLoop(inR)
	return fb
}

func (fb *fakeBackend) readLoop(r io.Reader) {
	f := &protocol.Framer{}
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, p := range f.Push(buf[:n]) {
				if m, derr := protocol.Decode(p); derr == nil {
					fb.fromSession <- m
				}
			}
		}
		if err != nil {
			close(fb.fromSession)
			return
		}
	}
}

// expect returns the next message from the session whose method matches,
// skipping everything else.
func (fb *fakeBackend) expect(t *testing.T, method string) *protocol.Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m, ok := <-fb.fromSession:
			if !ok {
				t.Fatalf("session stream closed while waiting for %s", method)
			}
			if m.Method == method {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", method)
		}
	}
}

// expectResponse returns the next response message from the session.
func (fb *fakeBackend) expectResponse(t *testing.T) *protocol.Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m, ok := <-fb.fromSession:
			if !ok {
				t.Fatal("session stream closed while waiting for a response")
			}
			if m.Kind() == protocol.KindResponse {
				return m
			}
		case <-deadline:
			t.Fatal("timed out waiting for a response")
		}
	}
}

func (fb *fakeBackend) send(t *testing.T, m *protocol.Message) {
	t.Helper()
	raw, err := m.Encode()
	require.NoError(t, err)
	fb.wMu.Lock()
	defer fb.wMu.Unlock()
	require.NoError(t, protocol.WriteFrame(fb.w, raw))
}

func (fb *fakeBackend) respond(t *testing.T, id json.RawMessage, result any) {
	t.Helper()
	m, err := protocol.NewResponse(id, result)
	require.NoError(t, err)
	fb.send(t, m)
}

func (fb *fakeBackend) request(t *testing.T, id int64, method string, params any) {
	t.Helper()
	m, err := protocol.NewRequest(id, method, params)
	require.NoError(t, err)
	fb.send(t, m)
}

func (fb *fakeBackend) notify(t *testing.T, method string, params any) {
	t.Helper()
	m, err := protocol.NewNotification(method, params)
	require.NoError(t, err)
	fb.send(t, m)
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		LauncherPath:    "/nonexistent/backend",
		DistDir:         t.TempDir(),
		StorageDir:      t.TempDir(),
		WorkDir:         t.TempDir(),
		ClientVersion:   "test",
		ControlTimeout:  2 * time.Second,
		AnalysisTimeout: 5 * time.Second,
		SettleDelay:     time.Millisecond,
	}
}

// startReadySession attaches a session to a fake backend and walks it
// through the handshake, returning it in the Ready state.
func startReadySession(t *testing.T, cfg *Config) (*Session, *fakeBackend) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	s := New(cfg)
	fb := newFakeBackend()

	s.mu.Lock()
	s.state = StateHandshaking
	s.mu.Unlock()
	s.attach(fb.sessionStdin, fb.sessionStdout)

	errCh := make(chan error, 1)
	go func() { errCh <- s.handshake(context.Background()) }()

	init := fb.expect(t, MethodInitialize)
	fb.respond(t, init.ID, struct{}{})
	require.NoError(t, <-errCh)
	require.Equal(t, StateReady, s.State())
	return s, fb
}

func TestSession_FailsFastWhenDisconnected(t *testing.T) {
	s := New(testConfig(t))

	_, err := s.Call(context.Background(), MethodListRules, nil, protocol.ClassControl)
	assert.ErrorIs(t, err, types.ErrNotConnected)

	err = s.Notify(MethodDidOpenFile, struct{}{})
	assert.ErrorIs(t, err, types.ErrNotConnected)
}

func TestSession_HandshakePayload(t *testing.T) {
	cfg := testConfig(t)
	cfg.NodePath = "/opt/node/bin/node"
	s := New(cfg)
	fb := newFakeBackend()

	s.mu.Lock()
	s.state = StateHandshaking
	s.mu.Unlock()
	s.attach(fb.sessionStdin, fb.sessionStdout)

	errCh := make(chan error, 1)
	go func() { errCh <- s.handshake(context.Background()) }()

	init := fb.expect(t, MethodInitialize)
	var p initializeParams
	require.NoError(t, json.Unmarshal(init.Params, &p))

	// Every field below is load-bearing for backend startup.
	assert.NotEmpty(t, p.BackendCapabilities, "empty capability list breaks backend dependency injection")
	assert.Equal(t, cfg.StorageDir, p.StorageRoot)
	assert.Equal(t, cfg.WorkDir, p.WorkDir)
	assert.NotEmpty(t, p.EnabledLanguagesInStandaloneMode)
	assert.NotNil(t, p.EmbeddedPluginPaths)
	require.NotNil(t, p.LanguageSpecificRequirements.JsTsRequirements)
	assert.Equal(t, cfg.NodePath, p.LanguageSpecificRequirements.JsTsRequirements.ClientNodeJsPath)
	// The bundle path is the parent of the package dir; the backend
	// appends its own suffix.
	assert.Equal(t, filepath.Join(cfg.DistDir, "bridge"), p.LanguageSpecificRequirements.JsTsRequirements.BundlePath)

	fb.respond(t, init.ID, struct{}{})
	require.NoError(t, <-errCh)
	assert.Equal(t, StateReady, s.State())
}

func TestSession_HandshakeErrorStaysDisconnected(t *testing.T) {
	s := New(testConfig(t))
	fb := newFakeBackend()

	s.mu.Lock()
	s.state = StateHandshaking
	s.mu.Unlock()
	s.attach(fb.sessionStdin, fb.sessionStdout)

	errCh := make(chan error, 1)
	go func() { errCh <- s.handshake(context.Background()) }()

	init := fb.expect(t, MethodInitialize)
	fb.send(t, protocol.NewErrorResponse(init.ID, -32603, "plugin load failure"))

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin load failure")
	assert.NotEqual(t, StateReady, s.State())
}

func TestSession_CallCorrelationAcrossInterleavedResponses(t *testing.T) {
	s, fb := startReadySession(t, nil)

	type outcome struct {
		raw json.RawMessage
		err error
	}
	results := make([]chan outcome, 3)
	for i := range results {
		results[i] = make(chan outcome, 1)
		go func() {
			raw, err := s.Call(context.Background(), fmt.Sprintf("call/%d", i), nil, protocol.ClassControl)
			results[i] <- outcome{raw, err}
		}()
	}

	reqs := make([]*protocol.Message, 3)
	for i := range reqs {
		reqs[i] = fb.expect(t, fmt.Sprintf("call/%d", i))
	}

	// Answer out of order; each caller must get its own payload.
	for i := 2; i >= 0; i-- {
		fb.respond(t, reqs[i].ID, map[string]int{"n": i})
	}
	for i := range results {
		res := <-results[i]
		require.NoError(t, res.err)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(res.raw))
	}
}

func TestSession_BackendErrorUnwrapped(t *testing.T) {
	s, fb := startReadySession(t, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), MethodListRules, nil, protocol.ClassControl)
		done <- err
	}()

	req := fb.expect(t, MethodListRules)
	fb.send(t, protocol.NewErrorResponse(req.ID, -32002, "rules not loaded"))

	err := <-done
	require.Error(t, err)
	var re *protocol.ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "rules not loaded", re.Message)
}

func TestSession_MassRejectionOnExit(t *testing.T) {
	s, fb := startReadySession(t, nil)

	const k = 5
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		go func() {
			_, err := s.Call(context.Background(), fmt.Sprintf("pending/%d", i), nil, protocol.ClassAnalysis)
			errs <- err
		}()
	}
	for i := 0; i < k; i++ {
		fb.expect(t, fmt.Sprintf("pending/%d", i))
	}

	s.onExit(fmt.Errorf("backend crashed"))

	for i := 0; i < k; i++ {
		assert.ErrorIs(t, <-errs, types.ErrSessionClosed)
	}
	assert.Equal(t, StateDisconnected, s.State())

	// Further use requires re-establishing the session.
	_, err := s.Call(context.Background(), MethodListRules, nil, protocol.ClassControl)
	assert.ErrorIs(t, err, types.ErrNotConnected)
}

func TestSession_UnknownResponseIDDiscarded(t *testing.T) {
	s, fb := startReadySession(t, nil)

	fb.respond(t, json.RawMessage(`999`), map[string]string{"stale": "yes"})

	// The session keeps working after discarding the orphan response.
	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), MethodListRules, nil, protocol.ClassControl)
		done <- err
	}()
	req := fb.expect(t, MethodListRules)
	fb.respond(t, req.ID, struct{}{})
	assert.NoError(t, <-done)
}

func TestSession_ScopeSingleton(t *testing.T) {
	s, fb := startReadySession(t, nil)
	root := t.TempDir()

	sc1, err := s.EnsureScope(root)
	require.NoError(t, err)

	n := fb.expect(t, MethodAddScopes)
	var p addScopesParams
	require.NoError(t, json.Unmarshal(n.Params, &p))
	require.Len(t, p.AddedScopes, 1)
	assert.Equal(t, sc1.ID, p.AddedScopes[0].ID)

	sc2, err := s.EnsureScope(root)
	require.NoError(t, err)
	assert.Same(t, sc1, sc2)

	// Same root through a non-clean path still maps to the same scope.
	sc3, err := s.EnsureScope(root + string(os.PathSeparator) + ".")
	require.NoError(t, err)
	assert.Equal(t, sc1.ID, sc3.ID)

	// Only the first registration reaches the wire: issue a control call
	// and verify no second addedScopes notification precedes it.
	go func() {
		_, _ = s.Call(context.Background(), "noop", nil, protocol.ClassControl)
	}()
	for m := range fb.fromSession {
		require.NotEqual(t, MethodAddScopes, m.Method, "scope registered twice")
		if m.Method == "noop" {
			fb.respond(t, m.ID, struct{}{})
			break
		}
	}
}

func TestSession_ScopeSingletonUnderConcurrency(t *testing.T) {
	s, fb := startReadySession(t, nil)
	root := t.TempDir()

	go func() {
		// Drain whatever arrives; only counting registrations matters.
		for range fb.fromSession {
		}
	}()

	const n = 16
	scopes := make(chan *Scope, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc, err := s.EnsureScope(root)
			assert.NoError(t, err)
			scopes <- sc
		}()
	}
	wg.Wait()
	close(scopes)

	first := <-scopes
	for sc := range scopes {
		assert.Same(t, first, sc)
	}
}

func TestSession_CallbacksAnsweredWhileCallOutstanding(t *testing.T) {
	s, fb := startReadySession(t, nil)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("var x = 1;\n"), 0644))

	sc, err := s.EnsureScope(root)
	require.NoError(t, err)
	fb.expect(t, MethodAddScopes)

	// Keep one of our calls outstanding while the backend calls us back.
	callDone := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), MethodAnalyzeFiles, nil, protocol.ClassAnalysis)
		callDone <- err
	}()
	analyzeReq := fb.expect(t, MethodAnalyzeFiles)

	fb.request(t, 501, "listFiles", scopeParams{ConfigScopeID: sc.ID})
	resp := fb.expectResponse(t)
	assert.Equal(t, `501`, string(resp.ID))

	var lf listFilesResponse
	require.NoError(t, json.Unmarshal(resp.Result, &lf))
	require.Len(t, lf.Files, 1)
	d := lf.Files[0]
	assert.True(t, d.IsUserDefined, "backend drops files without isUserDefined")
	require.NotNil(t, d.Content, "listFiles must carry actual file bytes")
	assert.Equal(t, "var x = 1;\n", *d.Content)
	assert.Equal(t, "app.js", d.IDERelativePath)
	assert.Equal(t, types.LangJS, d.DetectedLanguage)

	// Our own call is still pending and resolves normally afterwards.
	fb.respond(t, analyzeReq.ID, struct{}{})
	assert.NoError(t, <-callDone)
}

func TestSession_CallbackGetBaseDir(t *testing.T) {
	s, fb := startReadySession(t, nil)
	root := t.TempDir()
	sc, err := s.EnsureScope(root)
	require.NoError(t, err)
	fb.expect(t, MethodAddScopes)

	fb.request(t, 7, "getBaseDir", scopeParams{ConfigScopeID: sc.ID})
	resp := fb.expectResponse(t)

	var out baseDirResponse
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	assert.Equal(t, sc.Root, out.BaseDir)
}

func TestSession_CallbackFileExclusionsKey(t *testing.T) {
	s, fb := startReadySession(t, nil)
	sc, err := s.EnsureScope(t.TempDir())
	require.NoError(t, err)
	fb.expect(t, MethodAddScopes)

	fb.request(t, 8, "getFileExclusions", scopeParams{ConfigScopeID: sc.ID})
	resp := fb.expectResponse(t)

	// The exact key matters: the backend null-pointer-crashes on a
	// synonym.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Result, &raw))
	require.Contains(t, raw, "fileExclusionPatterns")

	var patterns []string
	require.NoError(t, json.Unmarshal(raw["fileExclusionPatterns"], &patterns))
	assert.NotEmpty(t, patterns)
}

func TestSession_CallbackInferredProperties(t *testing.T) {
	s, fb := startReadySession(t, nil)
	sc, err := s.EnsureScope(t.TempDir())
	require.NoError(t, err)
	fb.expect(t, MethodAddScopes)

	fb.request(t, 9, "getInferredAnalysisProperties", scopeParams{ConfigScopeID: sc.ID})
	resp := fb.expectResponse(t)

	var out inferredPropertiesResponse
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	assert.NotNil(t, out.Properties)
}

func TestSession_UnknownInboundRequestGetsEmptyResponse(t *testing.T) {
	s, fb := startReadySession(t, nil)
	_ = s

	fb.request(t, 10, "someFutureCallback", map[string]string{"x": "y"})
	resp := fb.expectResponse(t)

	assert.Equal(t, `10`, string(resp.ID))
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{}`, string(resp.Result))
}

func TestSession_UnrecognizedNotificationIgnored(t *testing.T) {
	s, fb := startReadySession(t, nil)

	fb.notify(t, "telemetry/somethingNew", map[string]string{"k": "v"})
	fb.notify(t, "log", logParams{Level: "INFO", Message: "analyzer loaded"})

	// The stream stays usable.
	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), MethodListRules, nil, protocol.ClassControl)
		done <- err
	}()
	req := fb.expect(t, MethodListRules)
	fb.respond(t, req.ID, struct{}{})
	assert.NoError(t, <-done)
}

func TestSession_InvalidateFileSequence(t *testing.T) {
	s, fb := startReadySession(t, nil)
	root := t.TempDir()
	file := filepath.Join(root, "fixme.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0644))

	sc, err := s.EnsureScope(root)
	require.NoError(t, err)
	fb.expect(t, MethodAddScopes)

	// Mutate the file out-of-band, then invalidate.
	require.NoError(t, os.WriteFile(file, []byte("x = 2\n"), 0644))

	done := make(chan error, 1)
	go func() { done <- s.InvalidateFile(context.Background(), sc.ID, file) }()

	// Step 1: the file is marked open first; a closed file's updates are
	// ignored by the backend.
	opened := fb.expect(t, MethodDidOpenFile)
	var op didOpenFileParams
	require.NoError(t, json.Unmarshal(opened.Params, &op))
	assert.Equal(t, sc.ID, op.ConfigurationScopeID)
	assert.Equal(t, types.FileURI(file), op.FileURI)

	// Step 2: the update carries the re-read content and required flags.
	updated := fb.expect(t, MethodDidUpdateFS)
	var up didUpdateFileSystemParams
	require.NoError(t, json.Unmarshal(updated.Params, &up))
	require.Len(t, up.ChangedFiles, 1)
	d := up.ChangedFiles[0]
	require.NotNil(t, d.Content, "null content lets the backend serve a stale disk read")
	assert.Equal(t, "x = 2\n", *d.Content)
	assert.True(t, d.IsUserDefined)
	assert.Equal(t, types.LangPython, d.DetectedLanguage)

	// Step 3: the settling delay elapses before InvalidateFile returns.
	require.NoError(t, <-done)
}

func TestSession_InvalidateFileUnknownScope(t *testing.T) {
	s, _ := startReadySession(t, nil)
	err := s.InvalidateFile(context.Background(), "nope", "/tmp/x.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration scope")
}

func TestSession_DisconnectGraceful(t *testing.T) {
	s, fb := startReadySession(t, nil)

	done := make(chan struct{})
	go func() {
		s.Disconnect()
		close(done)
	}()

	req := fb.expect(t, MethodShutdown)
	fb.respond(t, req.ID, struct{}{})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Disconnect hung")
	}
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSession_ConnectMissingBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.LauncherPath = filepath.Join(t.TempDir(), "does-not-exist")
	s := New(cfg)

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, types.ErrBackendNotFound)
	assert.Equal(t, StateDisconnected, s.State())
}
