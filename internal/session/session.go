package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sonarbridge/sonarbridge-mcp/internal/protocol"
	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

// Backend wire methods.
const (
	MethodInitialize   = "initialize"
	MethodShutdown     = "shutdown"
	MethodAddScopes    = "configuration/didAddConfigurationScopes"
	MethodAnalyzeFiles = "analysis/analyzeFilesAndTrack"
	MethodDidOpenFile  = "file/didOpenFile"
	MethodDidUpdateFS  = "file/didUpdateFileSystem"
	MethodListRules    = "rules/listAllStandaloneRulesDefinitions"

	methodListFiles         = "listFiles"
	methodGetBaseDir        = "getBaseDir"
	methodGetFileExclusions = "getFileExclusions"
	methodGetInferredProps  = "getInferredAnalysisProperties"
	methodLog               = "log"
)

// gracefulShutdownTimeout bounds the shutdown request before the process
// is killed unconditionally.
const gracefulShutdownTimeout = 3 * time.Second

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateReady
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Session manages one backend process and the single ordered RPC stream
// shared with it.
type Session struct {
	cfg *Config

	mu    sync.Mutex // guards state and proc
	state State
	proc  *exec.Cmd

	writeMu sync.Mutex // serializes frame writes
	stdin   io.WriteCloser

	pending *protocol.PendingCalls
	scopes  *scopeTable

	done chan struct{} // closed when the read loop ends
}

// New builds a disconnected session.
func New(cfg *Config) *Session {
	return &Session{
		cfg:     cfg,
		pending: protocol.NewPendingCalls(cfg.ControlTimeout, cfg.AnalysisTimeout),
		scopes:  newScopeTable(),
		done:    closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect spawns the backend, wires its streams, and performs the
// initialize handshake. It resolves only once the handshake response
// arrives; on any failure the process is terminated and the session
// returns to Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("connect: session already %s", st)
	}
	s.mu.Unlock()

	if _, err := os.Stat(s.cfg.LauncherPath); err != nil {
		return fmt.Errorf("%w: %s", types.ErrBackendNotFound, s.cfg.LauncherPath)
	}

	cmd := exec.Command(s.cfg.LauncherPath, s.cfg.launcherArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("wire backend stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("wire backend stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("wire backend stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start backend: %w", err)
	}

	s.mu.Lock()
	s.proc = cmd
	s.state = StateHandshaking
	s.mu.Unlock()

	s.attach(stdin, stdout)
	go s.logStderr(stderr)
	go func() {
		err := cmd.Wait()
		s.onExit(err)
	}()

	if err := s.handshake(ctx); err != nil {
		_ = cmd.Process.Kill()
		return err
	}
	log.Printf("session: backend ready (pid %d)", cmd.Process.Pid)
	return nil
}

// attach wires an already-open transport and starts the read loop. Tests
// use it directly with in-memory pipes in place of a real process.
func (s *Session) attach(stdin io.WriteCloser, stdout io.Reader) {
	s.writeMu.Lock()
	s.stdin = stdin
	s.writeMu.Unlock()
	s.done = make(chan struct{})
	go s.readLoop(stdout)
}

// handshake issues the initialize request. It is the only call valid in
// the Handshaking state.
func (s *Session) handshake(ctx context.Context) error {
	_, err := s.send(ctx, MethodInitialize, s.cfg.initializePayload(), protocol.ClassControl, StateHandshaking)
	if err != nil {
		return fmt.Errorf("initialize handshake: %w", err)
	}
	s.mu.Lock()
	if s.state == StateHandshaking {
		s.state = StateReady
	}
	s.mu.Unlock()
	return nil
}

// Disconnect attempts a graceful shutdown request, then unconditionally
// terminates the process and clears connected state. It never hangs: the
// graceful attempt is bounded by gracefulShutdownTimeout.
func (s *Session) Disconnect() {
	s.mu.Lock()
	proc := s.proc
	state := s.state
	s.mu.Unlock()
	if state == StateDisconnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if _, err := s.send(ctx, MethodShutdown, struct{}{}, protocol.ClassControl, StateReady); err != nil {
		log.Printf("session: graceful shutdown failed, killing backend: %v", err)
	}

	if proc != nil && proc.Process != nil {
		_ = proc.Process.Kill()
		// cmd.Wait's goroutine runs onExit.
		return
	}
	// Transport without a process (tests): close the pipe and settle
	// state directly.
	s.writeMu.Lock()
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	s.writeMu.Unlock()
	s.onExit(nil)
}

// onExit settles the session after the backend process (or transport) is
// gone: every outstanding call is rejected so no caller hangs on a
// response that can never arrive.
func (s *Session) onExit(err error) {
	s.mu.Lock()
	wasConnected := s.state != StateDisconnected
	s.state = StateDisconnected
	s.proc = nil
	s.mu.Unlock()

	s.pending.FailAll(types.ErrSessionClosed)
	s.scopes.reset()
	if wasConnected {
		log.Printf("session: backend exited: %v", err)
	}
}

// Call issues a request and waits for its response or deadline. Valid
// only in Ready; it fails fast otherwise rather than queuing.
func (s *Session) Call(ctx context.Context, method string, params any, class protocol.Class) (json.RawMessage, error) {
	return s.send(ctx, method, params, class, StateReady)
}

func (s *Session) send(ctx context.Context, method string, params any, class protocol.Class, want State) (json.RawMessage, error) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st != want {
		return nil, fmt.Errorf("%s in state %s: %w", method, st, types.ErrNotConnected)
	}

	id, ch := s.pending.Register(method, class)
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		s.pending.Reject(id, err)
		return nil, err
	}
	if err := s.writeMessage(msg); err != nil {
		s.pending.Reject(id, err)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Raw, nil
	case <-ctx.Done():
		// Local abandonment only; the wire protocol has no cancellation,
		// so the backend may still complete the work.
		s.pending.Reject(id, ctx.Err())
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget notification. Valid only in Ready.
func (s *Session) Notify(method string, params any) error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st != StateReady {
		return fmt.Errorf("%s in state %s: %w", method, st, types.ErrNotConnected)
	}
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.writeMessage(msg)
}

func (s *Session) writeMessage(msg *protocol.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.stdin == nil {
		return types.ErrNotConnected
	}
	return protocol.WriteFrame(s.stdin, raw)
}

// readLoop is the single reader of the backend's output stream. Frames
// are processed strictly in arrival order; only inbound requests are
// handed off so their handlers cannot block response delivery.
func (s *Session) readLoop(r io.Reader) {
	defer close(s.done)
	framer := &protocol.Framer{}
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, payload := range framer.Push(buf[:n]) {
				s.dispatch(payload)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) dispatch(payload []byte) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		// Frame boundaries are length-declared, so a bad payload costs
		// only itself.
		log.Printf("session: dropping undecodable frame: %v", err)
		return
	}
	switch msg.Kind() {
	case protocol.KindResponse:
		id, ok := msg.CallID()
		if !ok {
			return
		}
		if msg.Error != nil {
			s.pending.Reject(id, msg.Error)
			return
		}
		// Unknown ids (already timed out) are discarded silently.
		s.pending.Resolve(id, msg.Result)
	case protocol.KindRequest:
		// The backend blocks until this is answered.
		go s.answer(msg)
	case protocol.KindNotification:
		s.handleNotification(msg)
	default:
		log.Printf("session: dropping message with neither id nor method")
	}
}

func (s *Session) answer(msg *protocol.Message) {
	result, err := s.handleCallback(msg.Method, msg.Params)

	var resp *protocol.Message
	if err != nil {
		resp = protocol.NewErrorResponse(msg.ID, -32603, err.Error())
	} else {
		resp, err = protocol.NewResponse(msg.ID, result)
		if err != nil {
			resp = protocol.NewErrorResponse(msg.ID, -32603, err.Error())
		}
	}
	if err := s.writeMessage(resp); err != nil {
		log.Printf("session: failed to answer %s: %v", msg.Method, err)
	}
}

type logParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (s *Session) handleNotification(msg *protocol.Message) {
	switch msg.Method {
	case methodLog:
		var p logParams
		if err := json.Unmarshal(msg.Params, &p); err == nil && p.Message != "" {
			log.Printf("backend [%s]: %s", strings.ToLower(p.Level), p.Message)
		}
	default:
		// Unrecognized notification names are expected across backend
		// versions; observe and move on.
		log.Printf("session: notification %s", msg.Method)
	}
}

// EnsureScope returns the configuration scope for a project root,
// registering it with the backend exactly once per session.
func (s *Session) EnsureScope(root string) (*Scope, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	return s.scopes.ensure(abs, func(sc *Scope) error {
		return s.Notify(MethodAddScopes, addScopesParams{
			AddedScopes: []scopeDTO{{ID: sc.ID, Name: sc.Name}},
		})
	})
}

// ScopeByID resolves a registered scope, as referenced in backend
// callbacks and findings.
func (s *Session) ScopeByID(id string) (*Scope, bool) {
	return s.scopes.lookup(id)
}

type scopeDTO struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

type addScopesParams struct {
	AddedScopes []scopeDTO `json:"addedScopes"`
}

// benignNoisePrefixes are diagnostic-stream lines the JVM and its logging
// shims emit on every start; they carry no signal and are dropped.
var benignNoisePrefixes = []string{
	"SLF4J:",
	"WARNING: An illegal reflective access",
	"Picked up JAVA_TOOL_OPTIONS",
	"OpenJDK 64-Bit Server VM warning",
}

func (s *Session) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || isBenignNoise(line) {
			continue
		}
		log.Printf("backend stderr: %s", line)
	}
}

func isBenignNoise(line string) bool {
	for _, p := range benignNoisePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
