package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "default file written")

	again, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[hook]
startup_timeout_ms = 500
lock_on_start = true

[control]
port = 9000

[log]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Hook.StartupTimeout())
	assert.Equal(t, time.Second, cfg.Hook.ShutdownTimeout(), "untouched keys keep defaults")
	assert.True(t, cfg.Hook.LockOnStart)
	assert.Equal(t, 9000, cfg.Control.Port)
	assert.True(t, cfg.Control.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad port":     "[control]\nport = 70000\n",
		"zero timeout": "[hook]\nshutdown_timeout_ms = 0\n",
		"bad level":    "[log]\nlevel = \"loud\"\n",
		"bad format":   "[log]\nformat = \"xml\"\n",
		"bad toml":     "[hook\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0644))

			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestConfigDirOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "keyguard")
	t.Setenv("KEYGUARD_CONFIG_DIR", dir)

	got, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
