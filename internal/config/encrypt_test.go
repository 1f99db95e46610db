package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/tzwindow/internal/cryptoutil"
)

func TestEncryptedConfigRoundTrip(t *testing.T) {
	key, err := cryptoutil.GenerateKey()
	require.NoError(t, err)

	plain := writeConfig(t, sampleConfig)
	sealed := filepath.Join(t.TempDir(), "tzw.yaml.enc")
	require.NoError(t, EncryptConfigFile(plain, sealed, key))

	t.Setenv("TZW_CONFIG_KEY", "")
	_, err = Load(sealed)
	assert.Error(t, err)

	t.Setenv("TZW_CONFIG_KEY", key)
	cfg, err := Load(sealed)
	require.NoError(t, err)
	require.Len(t, cfg.Windows, 3)
	assert.Equal(t, "evening", cfg.Windows[0].ID)
}

func TestEncryptConfigFileRejectsBadInput(t *testing.T) {
	key, err := cryptoutil.GenerateKey()
	require.NoError(t, err)
	dir := t.TempDir()

	good := writeConfig(t, sampleConfig)
	assert.Error(t, EncryptConfigFile(good, filepath.Join(dir, "tzw.yaml"), key))

	bad := writeConfig(t, "windows:\n  - id: a\n    start: noon\n    end: \"10:00\"\n    timezone: UTC\n")
	assert.Error(t, EncryptConfigFile(bad, filepath.Join(dir, "bad.yaml.enc"), key))
}

func TestEncryptedConfigKeepsFormat(t *testing.T) {
	key, err := cryptoutil.GenerateKey()
	require.NoError(t, err)

	dir := t.TempDir()
	plain := filepath.Join(dir, "tzw.json")
	require.NoError(t, os.WriteFile(plain, []byte(`{"location":{"timezone":"UTC"},"windows":[{"id":"office","start":"09:00","end":"17:00"}]}`), 0o600))
	sealed := filepath.Join(dir, "secret.enc")
	require.NoError(t, EncryptConfigFile(plain, sealed, key))

	t.Setenv("TZW_CONFIG_KEY", key)
	cfg, err := Load(sealed)
	require.NoError(t, err)
	require.Len(t, cfg.Windows, 1)
	assert.Equal(t, "office", cfg.Windows[0].ID)
}
