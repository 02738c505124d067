package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_MissingFileIsEmpty(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	assert.Empty(t, s.ModelFor("google"))
	assert.Empty(t, s.DefaultProvider())
}

func TestSettings_UpdatePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	require.NoError(t, s.Update("anthropic", map[string]string{
		"google":    "gemini-2.0-flash",
		"anthropic": "claude-sonnet-4-20250514",
	}))

	reloaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", reloaded.DefaultProvider())
	assert.Equal(t, "gemini-2.0-flash", reloaded.ModelFor("google"))
}

func TestSettings_EmptyModelRemovesPreference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	require.NoError(t, s.Update("", map[string]string{"openai": "gpt-4o"}))
	require.NoError(t, s.Update("", map[string]string{"openai": ""}))

	assert.Empty(t, s.ModelFor("openai"))
}

func TestSettings_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadSettings(path)
	assert.ErrorContains(t, err, "failed to parse settings file")
}
