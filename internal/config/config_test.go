package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "https://api.checkout.com", cfg.Checkout.APIBaseURL)
	assert.Equal(t, 5, cfg.Poller.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Poller.Delay)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listen_addr: ":9090"
storefront_base_url: "https://shop.example.com"
checkout:
  secret_key: "sk_file"
  public_key: "pk_file"
  processing_channel_id: "pc_test"
poller:
  max_attempts: 2
  delay: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CHECKOUT_COM_SECRET_KEY", "sk_env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "https://shop.example.com", cfg.StorefrontBase)
	// Environment wins over the file for credentials.
	assert.Equal(t, "sk_env", cfg.Checkout.SecretKey)
	assert.Equal(t, "pk_file", cfg.Checkout.PublicKey)
	assert.Equal(t, "pc_test", cfg.Checkout.ProcessingChannelID)
	assert.Equal(t, 2, cfg.Poller.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Poller.Delay)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret key is required")

	cfg.Checkout.SecretKey = "sk_test"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public key is required")

	cfg.Checkout.PublicKey = "pk_test"
	assert.NoError(t, cfg.Validate())
}
