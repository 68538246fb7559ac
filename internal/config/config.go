// Package config loads lq configuration from JSONC files and CLI overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/livequery/pkg/livequery"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrCacheNameEmpty     = errors.New("cache_name cannot be empty")
	ErrConflictingModes   = errors.New("apply_on_commit_only requires apply_changes_immediately")
)

// FileName is the project config file name.
const FileName = ".lq.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized). Booleans are pointers so an overlay can
	// tell "unset" from false.
	ApplyChangesImmediately *bool  `json:"apply_changes_immediately,omitempty"`
	ApplyOnCommitOnly       *bool  `json:"apply_on_commit_only,omitempty"`
	CacheDir                string `json:"cache_dir,omitempty"`
	CacheName               string `json:"cache_name,omitempty"`
	DBPath                  string `json:"db_path,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string `json:"-"`
	CacheDirAbs  string `json:"-"` // empty: no file cache
	DBPathAbs    string `json:"-"` // empty: in-memory store

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ApplyChangesImmediately: ptr(true),
		ApplyOnCommitOnly:       ptr(false),
		CacheName:               "contacts",
	}
}

func ptr[T any](v T) *T { return &v }

// Mode maps the two apply flags to a controller mode.
func (c Config) Mode() livequery.Mode {
	return livequery.ModeFromFlags(deref(c.ApplyChangesImmediately, true), deref(c.ApplyOnCommitOnly, false))
}

func deref(b *bool, def bool) bool {
	if b == nil {
		return def
	}

	return *b
}

// Overrides are CLI flag values; zero fields leave the file config alone.
type Overrides struct {
	Mode     livequery.Mode
	DBPath   string
	CacheDir string
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config
	Env             map[string]string // environment variables
	Overrides       Overrides
}

// globalPath returns $XDG_CONFIG_HOME/lq/config.json, falling back to
// ~/.config/lq/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "lq", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "lq", "config.json")
	}

	return ""
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config (.lq.json in the working directory, if it exists)
// 4. Explicit config file via ConfigPath, which replaces the project file
// 5. CLI overrides.
//
// Paths in the returned Config are resolved against the working directory.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		global, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, global)
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	project, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, project)
	}

	cfg = applyOverrides(cfg, input.Overrides)

	if deref(cfg.ApplyOnCommitOnly, false) && !deref(cfg.ApplyChangesImmediately, true) {
		return Config{}, ErrConflictingModes
	}

	cfg.EffectiveCwd = workDir
	cfg.CacheDirAbs = resolve(workDir, cfg.CacheDir)

	if cfg.DBPath == ":memory:" {
		cfg.DBPathAbs = cfg.DBPath
	} else {
		cfg.DBPathAbs = resolve(workDir, cfg.DBPath)
	}

	return cfg, nil
}

func resolve(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}

// loadFile reads one config file. Missing optional files report loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err) && mustExist:
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		case os.IsNotExist(err):
			return Config{}, false, nil
		default:
			return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
		}
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "" must not silently fall back to the inherited value.
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if val, ok := raw["cache_name"].(string); ok && val == "" {
		return Config{}, ErrCacheNameEmpty
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.ApplyChangesImmediately != nil {
		base.ApplyChangesImmediately = overlay.ApplyChangesImmediately
	}

	if overlay.ApplyOnCommitOnly != nil {
		base.ApplyOnCommitOnly = overlay.ApplyOnCommitOnly
	}

	if overlay.CacheDir != "" {
		base.CacheDir = overlay.CacheDir
	}

	if overlay.CacheName != "" {
		base.CacheName = overlay.CacheName
	}

	if overlay.DBPath != "" {
		base.DBPath = overlay.DBPath
	}

	return base
}

func applyOverrides(cfg Config, o Overrides) Config {
	switch o.Mode {
	case livequery.ModeImmediate:
		cfg.ApplyChangesImmediately, cfg.ApplyOnCommitOnly = ptr(true), ptr(false)
	case livequery.ModeOnCommit:
		cfg.ApplyChangesImmediately, cfg.ApplyOnCommitOnly = ptr(true), ptr(true)
	case livequery.ModeBuffered:
		cfg.ApplyChangesImmediately, cfg.ApplyOnCommitOnly = ptr(false), ptr(false)
	}

	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}

	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
	}

	return cfg
}
