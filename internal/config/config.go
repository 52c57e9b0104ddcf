// Package config loads the optional .nts/config.yaml and supplies the
// documented defaults. Only MaxReadableFileBytes and ProtectedPaths take
// effect (they configure the Sandbox); MaxUndoHistory, LegacyEncoding
// and the git timeouts are parsed and defaulted but read by nothing,
// and the undo history stays bounded by the fixed txn.MaxHistory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxReadableFileBytes = 10 * 1024 * 1024
	DefaultMaxUndoHistory       = 50
	DefaultLegacyEncoding       = "windows-1252"
	DefaultGitQueryTimeoutSecs  = 5
	DefaultGitCommitTimeoutSecs = 10
)

// Config holds process-wide tunables. Zero value is never used
// directly; Load always fills in defaults for omitted fields.
type Config struct {
	MaxReadableFileBytes   int64    `yaml:"maxReadableFileBytes"`
	MaxUndoHistory         int      `yaml:"maxUndoHistory"`
	LegacyEncoding         string   `yaml:"legacyEncoding"`
	GitQueryTimeoutSeconds int      `yaml:"gitQueryTimeoutSeconds"`
	GitCommitTimeoutSeconds int     `yaml:"gitCommitTimeoutSeconds"`
	ProtectedPaths         []string `yaml:"protectedPaths"`
}

func Default() *Config {
	return &Config{
		MaxReadableFileBytes:    DefaultMaxReadableFileBytes,
		MaxUndoHistory:          DefaultMaxUndoHistory,
		LegacyEncoding:          DefaultLegacyEncoding,
		GitQueryTimeoutSeconds:  DefaultGitQueryTimeoutSecs,
		GitCommitTimeoutSeconds: DefaultGitCommitTimeoutSecs,
	}
}

// Load reads <projectRoot>/.nts/config.yaml if present, overlaying it
// on top of the defaults. A missing file is not an error; a present
// but unparsable file is a startup failure (spec §6 exit codes).
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(projectRoot, ".nts", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	overlay := Config{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if overlay.MaxReadableFileBytes > 0 {
		cfg.MaxReadableFileBytes = overlay.MaxReadableFileBytes
	}
	if overlay.MaxUndoHistory > 0 {
		cfg.MaxUndoHistory = overlay.MaxUndoHistory
	}
	if overlay.LegacyEncoding != "" {
		cfg.LegacyEncoding = overlay.LegacyEncoding
	}
	if overlay.GitQueryTimeoutSeconds > 0 {
		cfg.GitQueryTimeoutSeconds = overlay.GitQueryTimeoutSeconds
	}
	if overlay.GitCommitTimeoutSeconds > 0 {
		cfg.GitCommitTimeoutSeconds = overlay.GitCommitTimeoutSeconds
	}
	cfg.ProtectedPaths = append(cfg.ProtectedPaths, overlay.ProtectedPaths...)

	return cfg, nil
}
