// Package config loads zen's TOML configuration from ~/.zen/zen.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/zen-cli/zen/zenerr"
	"github.com/zen-cli/zen/zenlog"
)

const (
	dirName                    = ".zen"
	fileName                   = "zen.toml"
	defaultCmd                 = "claude"
	defaultMaxRetries          = 2
	defaultStuckTimeoutSeconds = 300
)

// Config is the parsed form of zen.toml. Unknown keys are rejected.
type Config struct {
	// Trust auto-confirms agent prompts (e.g. "trust this folder?" screens).
	Trust bool `toml:"trust"`
	// WorktreeDir is where per-task worktrees are created. Defaults to
	// ~/.zen/worktrees; a leading "~/" is expanded to the home directory.
	WorktreeDir string `toml:"worktree_dir"`
	// Command is the agent binary to spawn for each task.
	Command string `toml:"command"`
	// MaxRetries bounds how many times a failed task is retried before it is
	// left Failed.
	MaxRetries int `toml:"max_retries"`
	// StuckTimeoutSeconds is how long an agent may go without output before
	// the health monitor classifies it as stuck.
	StuckTimeoutSeconds int `toml:"stuck_timeout_seconds"`
	// SkipDocumentation skips the WorkflowDriver's optional Documentation
	// phase.
	SkipDocumentation bool `toml:"skip_documentation"`
}

// Dir returns ~/.zen, creating it lazily is the caller's responsibility.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", zenerr.New(zenerr.NoHomeDir, "config.Dir", err)
	}
	return filepath.Join(home, dirName), nil
}

// Path returns the full path to zen.toml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Default returns the configuration used when no zen.toml exists.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, zenerr.New(zenerr.NoHomeDir, "config.Default", err)
	}
	return &Config{
		Trust:               false,
		WorktreeDir:         filepath.Join(home, dirName, "worktrees"),
		Command:             defaultCmd,
		MaxRetries:          defaultMaxRetries,
		StuckTimeoutSeconds: defaultStuckTimeoutSeconds,
		SkipDocumentation:   false,
	}, nil
}

// Load reads and validates zen.toml, falling back to defaults (and writing
// them out) if the file does not exist yet.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg, derr := Default()
			if derr != nil {
				return nil, derr
			}
			if saveErr := Save(cfg); saveErr != nil {
				zenlog.WarningLog.Printf("failed to persist default config: %v", saveErr)
			}
			return cfg, nil
		}
		return nil, zenerr.New(zenerr.Io, "config.Load", err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, zenerr.New(zenerr.ConfigParse, "config.Load", err)
	}
	for key := range raw {
		switch key {
		case "trust", "worktree_dir", "command", "max_retries", "stuck_timeout_seconds", "skip_documentation":
		default:
			return nil, zenerr.New(zenerr.ConfigParse, "config.Load",
				fmt.Errorf("unknown configuration key %q", key))
		}
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, zenerr.New(zenerr.ConfigParse, "config.Load", err)
	}

	if cfg.Command == "" {
		cfg.Command = defaultCmd
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.StuckTimeoutSeconds == 0 {
		cfg.StuckTimeoutSeconds = defaultStuckTimeoutSeconds
	}
	if cfg.WorktreeDir == "" {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return nil, zenerr.New(zenerr.NoHomeDir, "config.Load", herr)
		}
		cfg.WorktreeDir = filepath.Join(home, dirName, "worktrees")
	} else {
		cfg.WorktreeDir, err = expandHome(cfg.WorktreeDir)
		if err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Save writes cfg to ~/.zen/zen.toml, creating the directory if needed.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zenerr.New(zenerr.Io, "config.Save", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return zenerr.New(zenerr.ConfigParse, "config.Save", err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return zenerr.New(zenerr.Io, "config.Save", err)
	}
	return nil
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", zenerr.New(zenerr.NoHomeDir, "config.expandHome", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~/")), nil
}
