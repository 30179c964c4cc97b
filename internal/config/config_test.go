package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), cfg.Seed.Deposit)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SYSTEM_DEPOSIT", "2500")
	t.Setenv("NOTIFY_TIMEOUT", "750ms")
	t.Setenv("BASE_URL", "https://recruit.example.com/")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), cfg.Seed.Deposit)
	assert.Equal(t, 750*time.Millisecond, cfg.NotifyTimeout)
	assert.Equal(t, "https://recruit.example.com/recruit/ABC", cfg.RedeemURL("ABC"))
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SEED_SYSTEM_NAME=system\n"), 0o600))
	t.Setenv("SEED_SYSTEM_NAME", "")
	os.Unsetenv("SEED_SYSTEM_NAME")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "system", cfg.Seed.Name)
	os.Unsetenv("SEED_SYSTEM_NAME")
}

func TestLoadRejectsNegativeDeposit(t *testing.T) {
	t.Setenv("SYSTEM_DEPOSIT", "-1")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
