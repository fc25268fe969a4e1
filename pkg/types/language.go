package types

import (
	"path/filepath"
	"strings"
)

// Language is the backend's uppercase language enum. The backend rejects
// (or silently ignores) descriptors whose detectedLanguage is not one of
// these exact values.
type Language string

const (
	LangJS         Language = "JS"
	LangTS         Language = "TS"
	LangCSS        Language = "CSS"
	LangWeb        Language = "WEB" // HTML
	LangPython     Language = "PYTHON"
	LangGo         Language = "GO"
	LangJava       Language = "JAVA"
	LangKotlin     Language = "KOTLIN"
	LangPHP        Language = "PHP"
	LangRuby       Language = "RUBY"
	LangXML        Language = "XML"
	LangYAML       Language = "YAML"
	LangJSON       Language = "JSON"
	LangDocker     Language = "DOCKER"
	LangSecrets    Language = "SECRETS"
	LangUnknown    Language = ""
)

var extToLanguage = map[string]Language{
	".js":   LangJS,
	".jsx":  LangJS,
	".mjs":  LangJS,
	".cjs":  LangJS,
	".ts":   LangTS,
	".tsx":  LangTS,
	".mts":  LangTS,
	".cts":  LangTS,
	".css":  LangCSS,
	".scss": LangCSS,
	".less": LangCSS,
	".html": LangWeb,
	".htm":  LangWeb,
	".py":   LangPython,
	".go":   LangGo,
	".java": LangJava,
	".kt":   LangKotlin,
	".kts":  LangKotlin,
	".php":  LangPHP,
	".rb":   LangRuby,
	".xml":  LangXML,
	".yml":  LangYAML,
	".yaml": LangYAML,
	".json": LangJSON,
}

// DetectLanguage maps a file path to the backend language enum by
// extension. Dockerfiles are matched by base name. Returns LangUnknown
// for anything unrecognized; the backend then falls back to its own
// detection.
func DetectLanguage(path string) Language {
	base := strings.ToLower(filepath.Base(path))
	if base == "dockerfile" || strings.HasPrefix(base, "dockerfile.") {
		return LangDocker
	}
	if lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LangUnknown
}

// EnabledLanguages is the language set declared in the handshake. The
// backend only loads analyzers for languages listed here.
func EnabledLanguages() []Language {
	return []Language{
		LangJS, LangTS, LangCSS, LangWeb,
		LangPython, LangGo, LangJava, LangKotlin,
		LangPHP, LangRuby, LangXML, LangYAML,
		LangDocker, LangSecrets,
	}
}

// IsAnalyzable reports whether a path maps to a known language.
func IsAnalyzable(path string) bool {
	return DetectLanguage(path) != LangUnknown
}
