package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sonarbridge/sonarbridge-mcp/internal/protocol"
	"github.com/sonarbridge/sonarbridge-mcp/pkg/types"
)

const (
	clientName = "sonarbridge-mcp"

	// DefaultSettleDelay is the wait between the file-system-update
	// notification and the next analysis call. The backend processes the
	// update asynchronously and offers no readiness acknowledgment, so
	// this value is empirically derived, not a protocol guarantee. Raise
	// it via SONARBRIDGE_SETTLE_MS if re-analysis after a fix is flaky.
	DefaultSettleDelay = 500 * time.Millisecond
)

// Config carries everything needed to spawn and initialize the backend.
type Config struct {
	// LauncherPath is the backend launcher executable.
	LauncherPath string
	// DistDir is the backend distribution root; plugin jars and the
	// JS/TS bridge bundle live under it.
	DistDir string
	// StorageDir is the backend's persistent storage root.
	StorageDir string
	// WorkDir is the backend's scratch directory.
	WorkDir string
	// NodePath is the bundled Node-compatible runtime used by the JS/TS
	// analyzer. Empty disables JS/TS-specific requirements.
	NodePath string

	ClientVersion   string
	ControlTimeout  time.Duration
	AnalysisTimeout time.Duration
	SettleDelay     time.Duration
}

// ConfigFromEnv builds a Config from SONARBRIDGE_* environment variables
// with sensible defaults under the user's home directory.
func ConfigFromEnv(version string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	base := filepath.Join(home, ".sonarbridge")

	cfg := &Config{
		LauncherPath:    os.Getenv("SONARBRIDGE_BACKEND_PATH"),
		DistDir:         envDefault("SONARBRIDGE_DIST_DIR", filepath.Join(base, "backend")),
		StorageDir:      envDefault("SONARBRIDGE_STORAGE_DIR", filepath.Join(base, "storage")),
		WorkDir:         envDefault("SONARBRIDGE_WORK_DIR", filepath.Join(base, "work")),
		NodePath:        os.Getenv("SONARBRIDGE_NODE_PATH"),
		ClientVersion:   version,
		ControlTimeout:  protocol.DefaultControlTimeout,
		AnalysisTimeout: protocol.DefaultAnalysisTimeout,
		SettleDelay:     DefaultSettleDelay,
	}
	if cfg.LauncherPath == "" {
		cfg.LauncherPath = filepath.Join(cfg.DistDir, "bin", "sonarlint-backend")
	}
	if ms := os.Getenv("SONARBRIDGE_SETTLE_MS"); ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SONARBRIDGE_SETTLE_MS %q", ms)
		}
		cfg.SettleDelay = time.Duration(n) * time.Millisecond
	}
	return cfg, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// launcherArgs are the backend-mandated runtime tuning flags, passed to
// the launcher on every spawn.
func (c *Config) launcherArgs() []string {
	return []string{
		"-XX:+ExitOnOutOfMemoryError",
		"-XX:MaxHeapSize=2048m",
		"-Djava.awt.headless=true",
		"-Dsonarlint.debug.active=false",
	}
}

// pluginPaths enumerates the embedded analyzer plugin jars shipped in the
// distribution. Missing jars are simply omitted; the backend only loads
// analyzers for plugins it is handed.
func (c *Config) pluginPaths() []string {
	jars, err := filepath.Glob(filepath.Join(c.DistDir, "plugins", "*.jar"))
	if err != nil || jars == nil {
		return []string{}
	}
	return jars
}

// jsBundleParentDir returns the directory handed to the backend as the
// JS/TS analysis bundle path. The backend appends its own fixed relative
// suffix to this value, so it must point at the PARENT of the bundle
// package directory. Pointing at the package itself makes the backend
// construct a doubled path segment and fail with "script does not
// exist".
func (c *Config) jsBundleParentDir() string {
	return filepath.Join(c.DistDir, "bridge")
}

// Handshake payload. Every field here is load-bearing; several couple to
// backend internals in non-obvious ways (see initializeParams fields).
// Do not trim "unused" fields: absent keys and null values are not
// interchangeable for this peer.

type clientConstantInfo struct {
	Name      string `json:"name"`
	UserAgent string `json:"userAgent"`
	PID       int    `json:"pid"`
}

type httpConfiguration struct {
	// All nullable; the backend substitutes its own defaults for nulls
	// but crashes on absent keys in some versions.
	ConnectTimeout    *string `json:"connectTimeout"`
	ResponseTimeout   *string `json:"responseTimeout"`
	SSLTrustStorePath *string `json:"sslTrustStorePath"`
	ProxyHost         *string `json:"proxyHost"`
	ProxyPort         *int    `json:"proxyPort"`
}

type jsTsRequirements struct {
	ClientNodeJsPath string `json:"clientNodeJsPath"`
	BundlePath       string `json:"bundlePath"`
}

type languageSpecificRequirements struct {
	JsTsRequirements *jsTsRequirements `json:"jsTsRequirements"`
}

type initializeParams struct {
	ClientConstantInfo clientConstantInfo `json:"clientConstantInfo"`

	// BackendCapabilities must be non-empty. An empty list trips a
	// dependency-injection failure inside the backend at startup; this is
	// a known fragile coupling, preserved deliberately.
	BackendCapabilities []string `json:"backendCapabilities"`

	HTTPConfiguration httpConfiguration `json:"httpConfiguration"`

	StorageRoot         string   `json:"storageRoot"`
	WorkDir             string   `json:"workDir"`
	EmbeddedPluginPaths []string `json:"embeddedPluginPaths"`

	EnabledLanguagesInStandaloneMode []types.Language `json:"enabledLanguagesInStandaloneMode"`
	DisabledPluginKeysForAnalysis    []string         `json:"disabledPluginKeysForAnalysis"`

	StandaloneRuleConfigByKey map[string]any `json:"standaloneRuleConfigByKey"`

	LanguageSpecificRequirements languageSpecificRequirements `json:"languageSpecificRequirements"`

	AutomaticAnalysisEnabled bool `json:"automaticAnalysisEnabled"`
	TelemetryEnabled         bool `json:"telemetryEnabled"`
}

// backendCapabilities is the fixed capability set declared during the
// handshake.
var backendCapabilities = []string{
	"PROJECT_SYNCHRONIZATION",
	"EMBEDDED_SERVER",
	"FULL_SYNCHRONIZATION",
}

// initializePayload assembles the handshake request parameters.
func (c *Config) initializePayload() initializeParams {
	p := initializeParams{
		ClientConstantInfo: clientConstantInfo{
			Name:      clientName,
			UserAgent: clientName + "/" + c.ClientVersion,
			PID:       os.Getpid(),
		},
		BackendCapabilities:              backendCapabilities,
		HTTPConfiguration:                httpConfiguration{},
		StorageRoot:                      c.StorageDir,
		WorkDir:                          c.WorkDir,
		EmbeddedPluginPaths:              c.pluginPaths(),
		EnabledLanguagesInStandaloneMode: types.EnabledLanguages(),
		DisabledPluginKeysForAnalysis:    []string{},
		StandaloneRuleConfigByKey:        map[string]any{},
		AutomaticAnalysisEnabled:         false,
		TelemetryEnabled:                 false,
	}
	if c.NodePath != "" {
		p.LanguageSpecificRequirements.JsTsRequirements = &jsTsRequirements{
			ClientNodeJsPath: c.NodePath,
			BundlePath:       c.jsBundleParentDir(),
		}
	}
	return p
}
