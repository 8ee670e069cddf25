package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexicard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	cfg, err := Load(NewFlagSet("test"), []string{"--config", missing})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.Sources)
	assert.Equal(t, "repos", cfg.ReposDir)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.StarterDeck)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
addr: "127.0.0.1:9000"
sources:
  - ./decks
  - https://github.com/me/turkish.git
repos_dir: /var/lib/lexicard/repos
shutdown_timeout: 3s
log:
  level: debug
  format: json
`)

	cfg, err := Load(NewFlagSet("test"), []string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, []string{"./decks", "https://github.com/me/turkish.git"}, cfg.Sources)
	assert.Equal(t, "/var/lib/lexicard/repos", cfg.ReposDir)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
addr: "127.0.0.1:9000"
log:
  level: debug
  format: json
`)
	t.Setenv("LEXICARD_ADDR", "127.0.0.1:9100")
	t.Setenv("LEXICARD_LOG__LEVEL", "warn")
	t.Setenv("LEXICARD_SOURCES", "a, b ,")

	cfg, err := Load(NewFlagSet("test"), []string{"--config", path, "--log-level", "error"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.Addr, "env overrides file")
	assert.Equal(t, "error", cfg.Log.Level, "explicit flag overrides env")
	assert.Equal(t, "json", cfg.Log.Format, "file overrides flag default")
	assert.Equal(t, []string{"a", "b"}, cfg.Sources)
}

func TestLoadSourceFlags(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	cfg, err := Load(NewFlagSet("test"), []string{
		"--config", missing,
		"--source", "./decks",
		"--source", "words.tsv",
		"--repos-dir", "/tmp/repos",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"./decks", "words.tsv"}, cfg.Sources)
	assert.Equal(t, "/tmp/repos", cfg.ReposDir)
}

func TestLoadStarterDeck(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	cfg, err := Load(NewFlagSet("test"), []string{"--config", missing, "--starter-deck=false"})
	require.NoError(t, err)
	assert.False(t, cfg.StarterDeck)

	path := writeConfig(t, "starter_deck: false\n")
	cfg, err = Load(NewFlagSet("test"), []string{"--config", path})
	require.NoError(t, err)
	assert.False(t, cfg.StarterDeck, "file overrides the flag default")

	t.Setenv("LEXICARD_STARTER_DECK", "false")
	cfg, err = Load(NewFlagSet("test"), []string{"--config", missing})
	require.NoError(t, err)
	assert.False(t, cfg.StarterDeck, "env overrides the flag default")
}

func TestLoadInvalid(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	testCases := []struct {
		name string
		args []string
	}{
		{"bad log level", []string{"--log-level", "loud"}},
		{"bad log format", []string{"--log-format", "xml"}},
		{"bad address", []string{"--addr", "not-an-address"}},
		{"zero shutdown", []string{"--shutdown", "0s"}},
		{"unknown flag", []string{"--nope"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(NewFlagSet("test"), append([]string{"--config", missing}, tc.args...))
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "addr: [unterminated\n")
	_, err := Load(NewFlagSet("test"), []string{"--config", path})
	assert.Error(t, err)
}
