// Package config loads the engine's file-based configuration from
// $CODEX_HOME/config.toml. Values are read once at process start and
// threaded down; nothing re-reads the environment later.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/turnrelay/engine/internal/models"
)

// HomeEnvVar overrides the engine home directory.
const HomeEnvVar = "CODEX_HOME"

// defaultHomeDirName is the engine home under $HOME when CODEX_HOME is unset.
const defaultHomeDirName = ".codex"

// ResolveHome returns the engine home: $CODEX_HOME when set, otherwise
// ~/.codex (falling back to a relative .codex if the home dir is unknown).
func ResolveHome() string {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return defaultHomeDirName
	}
	return filepath.Join(userHome, defaultHomeDirName)
}

// FileConfig is the on-disk configuration shape ($CODEX_HOME/config.toml).
// Every field is optional; zero values leave the session defaults alone.
type FileConfig struct {
	Model           string  `toml:"model"`
	Provider        string  `toml:"model_provider"`
	Temperature     float64 `toml:"temperature"`
	MaxTokens       int     `toml:"max_tokens"`
	ReasoningEffort string  `toml:"model_reasoning_effort"`

	ApprovalPolicy string   `toml:"approval_policy"`
	SandboxMode    string   `toml:"sandbox_mode"`
	WritableRoots  []string `toml:"sandbox_writable_roots"`
	NetworkAccess  bool     `toml:"sandbox_network_access"`

	ExcludeTmpdirEnvVar bool `toml:"sandbox_exclude_tmpdir_env_var"`
	ExcludeSlashTmp     bool `toml:"sandbox_exclude_slash_tmp"`

	DisableSuggestions    bool `toml:"disable_suggestions"`
	UseWorktree           bool `toml:"use_worktree"`
	AutoCompactTokenLimit int  `toml:"auto_compact_token_limit"`
}

// Load reads <home>/config.toml. A missing file returns an empty config; a
// malformed file is an error the caller should surface.
func Load(home string) (FileConfig, error) {
	var cfg FileConfig
	path := filepath.Join(home, "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Apply merges the file values into a session configuration. Only non-zero
// file values override; CLI flags applied afterwards still win over both.
func (c FileConfig) Apply(session *models.SessionConfiguration) error {
	if c.Model != "" {
		session.Model.Model = c.Model
	}
	if c.Provider != "" {
		session.Model.Provider = c.Provider
	}
	if c.Temperature != 0 {
		session.Model.Temperature = c.Temperature
	}
	if c.MaxTokens != 0 {
		session.Model.MaxTokens = c.MaxTokens
	}
	if c.ReasoningEffort != "" {
		session.Model.ReasoningEffort = c.ReasoningEffort
	}

	if c.ApprovalPolicy != "" {
		mode, err := models.ParseApprovalMode(c.ApprovalPolicy)
		if err != nil {
			return err
		}
		session.ApprovalMode = mode
	}
	if c.SandboxMode != "" {
		session.SandboxMode = c.SandboxMode
	}
	if len(c.WritableRoots) > 0 {
		session.SandboxWritableRoots = c.WritableRoots
	}
	if c.NetworkAccess {
		session.SandboxNetworkAccess = true
	}
	if c.ExcludeTmpdirEnvVar {
		session.SandboxExcludeTmpdirEnvVar = true
	}
	if c.ExcludeSlashTmp {
		session.SandboxExcludeSlashTmp = true
	}
	if c.DisableSuggestions {
		session.DisableSuggestions = true
	}
	if c.UseWorktree {
		session.UseWorktree = true
	}
	if c.AutoCompactTokenLimit != 0 {
		session.AutoCompactTokenLimit = c.AutoCompactTokenLimit
	}
	return nil
}
