package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/livequery/internal/config"
	"github.com/calvinalkan/livequery/pkg/livequery"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func load(t *testing.T, dir string, in config.LoadInput) config.Config {
	t.Helper()

	in.WorkDirOverride = dir
	if in.Env == nil {
		in.Env = map[string]string{"HOME": filepath.Join(dir, "home")}
	}

	cfg, err := config.Load(in)
	require.NoError(t, err)

	return cfg
}

func Test_Load_Returns_Defaults_When_No_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := load(t, dir, config.LoadInput{})

	assert.Equal(t, livequery.ModeImmediate, cfg.Mode())
	assert.Equal(t, "contacts", cfg.CacheName)
	assert.Empty(t, cfg.CacheDirAbs)
	assert.Empty(t, cfg.DBPathAbs)
	assert.Equal(t, dir, cfg.EffectiveCwd)
	assert.Equal(t, config.Sources{}, cfg.Sources)
}

func Test_Load_Applies_Precedence_When_All_Layers_Present(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")

	writeFile(t, filepath.Join(xdg, "lq", "config.json"), `{
		// global
		"cache_name": "global-name",
		"cache_dir": "/var/cache/lq",
		"apply_changes_immediately": false,
	}`)
	writeFile(t, filepath.Join(dir, ".lq.json"), `{"cache_name": "project-name", "db_path": "data.db"}`)

	cfg := load(t, dir, config.LoadInput{Env: map[string]string{"XDG_CONFIG_HOME": xdg}})

	assert.Equal(t, "project-name", cfg.CacheName, "project overrides global")
	assert.Equal(t, "/var/cache/lq", cfg.CacheDirAbs, "global survives when project is silent")
	assert.Equal(t, filepath.Join(dir, "data.db"), cfg.DBPathAbs)
	assert.Equal(t, livequery.ModeBuffered, cfg.Mode())
	assert.Equal(t, filepath.Join(xdg, "lq", "config.json"), cfg.Sources.Global)
	assert.Equal(t, filepath.Join(dir, ".lq.json"), cfg.Sources.Project)

	cli := load(t, dir, config.LoadInput{
		Env:       map[string]string{"XDG_CONFIG_HOME": xdg},
		Overrides: config.Overrides{Mode: livequery.ModeOnCommit, DBPath: ":memory:", CacheDir: "c"},
	})

	assert.Equal(t, livequery.ModeOnCommit, cli.Mode())
	assert.Equal(t, ":memory:", cli.DBPathAbs)
	assert.Equal(t, filepath.Join(dir, "c"), cli.CacheDirAbs)
}

func Test_Load_Uses_Explicit_File_Instead_Of_Project_When_Config_Flag_Set(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".lq.json"), `{"cache_name": "project"}`)
	writeFile(t, filepath.Join(dir, "custom.json"), `{"apply_on_commit_only": true}`)

	cfg := load(t, dir, config.LoadInput{ConfigPath: "custom.json"})

	assert.Equal(t, "contacts", cfg.CacheName)
	assert.Equal(t, livequery.ModeOnCommit, cfg.Mode())
	assert.Equal(t, filepath.Join(dir, "custom.json"), cfg.Sources.Project)
}

func Test_Load_Returns_Error_When_Input_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		config  string
		wantErr error
	}{
		{name: "MissingExplicit", config: "nope.json", wantErr: config.ErrConfigFileNotFound},
		{name: "BadJSON", file: `{"cache_name": `, wantErr: config.ErrConfigInvalid},
		{name: "WrongType", file: `{"apply_on_commit_only": "yes"}`, wantErr: config.ErrConfigInvalid},
		{name: "EmptyCacheName", file: `{"cache_name": ""}`, wantErr: config.ErrCacheNameEmpty},
		{
			name:    "OnCommitWithoutImmediate",
			file:    `{"apply_changes_immediately": false, "apply_on_commit_only": true}`,
			wantErr: config.ErrConflictingModes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, ".lq.json"), tt.file)
			}

			_, err := config.Load(config.LoadInput{
				WorkDirOverride: dir,
				ConfigPath:      tt.config,
				Env:             map[string]string{},
			})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
