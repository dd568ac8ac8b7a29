package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)

	// The default file was persisted and loads back.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.GatewayAddress, reloaded.GatewayAddress)
}

func TestLoadParsesAddressesAndBounty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
ListenAddress = ":9090"
GatewayAddress = "0x1111111111111111111111111111111111111111"
CoGatewayAddress = "0x2222222222222222222222222222222222222222"
Bounty = "1500"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)

	gw, err := cfg.ParseGatewayAddress()
	require.NoError(t, err)
	require.Equal(t, byte(0x11), gw[0])

	bounty, err := cfg.ParseBounty()
	require.NoError(t, err)
	require.Equal(t, int64(1500), bounty.Int64())
}

func TestLoadRejectsBadAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
GatewayAddress = "not-hex"
CoGatewayAddress = "0x2222222222222222222222222222222222222222"
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsIdenticalEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
GatewayAddress = "0x1111111111111111111111111111111111111111"
CoGatewayAddress = "0x1111111111111111111111111111111111111111"
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNegativeBounty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
GatewayAddress = "0x1111111111111111111111111111111111111111"
CoGatewayAddress = "0x2222222222222222222222222222222222222222"
Bounty = "-5"
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
