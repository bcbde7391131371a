package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 30*time.Minute, cfg.IdleTimeoutDuration())
	require.Equal(t, 10*time.Second, cfg.DrainDeadlineDuration())
	require.Equal(t, 500*time.Millisecond, cfg.DebounceWriteDuration())
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.ReleaseLocksOnDisconnect = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", loaded.LogLevel)
	require.True(t, loaded.ReleaseLocksOnDisconnect)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insecure permissions")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestParseDurationOr_InvalidFallsBack(t *testing.T) {
	cfg := &Config{IdleTimeout: "not-a-duration"}
	require.Equal(t, 30*time.Minute, cfg.IdleTimeoutDuration())
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("PHOTON_TEST_VAR", "resolved")
	env := map[string]string{"KEY": "$PHOTON_TEST_VAR-suffix"}
	resolved := ResolveEnv(env)
	require.Equal(t, "resolved-suffix", resolved["KEY"])
}

func TestResolveEnv_Nil(t *testing.T) {
	require.Nil(t, ResolveEnv(nil))
}
