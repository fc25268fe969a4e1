package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/sonarbridge/sonarbridge-mcp/internal/analysis"
	"github.com/sonarbridge/sonarbridge-mcp/internal/session"
	"github.com/sonarbridge/sonarbridge-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "sonarbridge-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	cfg     *session.Config
	session *session.Session
	orch    *analysis.Orchestrator
	store   storage.Store

	connectMu sync.Mutex
}

// NewServer creates a new MCP server instance. The backend process is
// not started here; see ensureConnected.
func NewServer(cfg *session.Config) (*Server, error) {
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(cfg.WorkDir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run history: %w", err)
	}

	sess := session.New(cfg)

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		cfg:     cfg,
		session: sess,
		orch:    analysis.New(sess, store),
		store:   store,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer s.shutdown()
	return server.ServeStdio(s.mcp)
}

// shutdown stops the backend process and releases the history store.
func (s *Server) shutdown() {
	if s.session.State() != session.StateDisconnected {
		s.session.Disconnect()
	}
	if err := s.store.Close(); err != nil {
		log.Printf("mcp: failed to close run history: %v", err)
	}
}

// ensureConnected starts the backend on first use. Concurrent tool
// calls serialize here so only one handshake runs.
func (s *Server) ensureConnected(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if s.session.State() == session.StateReady {
		return nil
	}
	return s.session.Connect(ctx)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(analyzeFileTool(), s.handleAnalyzeFile)
	s.mcp.AddTool(analyzeFilesTool(), s.handleAnalyzeFiles)
	s.mcp.AddTool(analyzeDirectoryTool(), s.handleAnalyzeDirectory)
	s.mcp.AddTool(analyzeSnippetTool(), s.handleAnalyzeSnippet)
	s.mcp.AddTool(applyFixTool(), s.handleApplyFix)
	s.mcp.AddTool(applyAllFixesTool(), s.handleApplyAllFixes)
	s.mcp.AddTool(listRulesTool(), s.handleListRules)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
