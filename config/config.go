package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`

	// GatewayAddress and CoGatewayAddress are the hex-encoded endpoint
	// accounts; each side treats the other as its remote.
	GatewayAddress   string `toml:"GatewayAddress"`
	CoGatewayAddress string `toml:"CoGatewayAddress"`

	// Bounty is the decimal escrow bounty in base token units.
	Bounty string `toml:"Bounty"`

	TokenSymbol string `toml:"TokenSymbol"`
	TokenName   string `toml:"TokenName"`

	LogEnvironment string `toml:"LogEnvironment"`
	LogFile        string `toml:"LogFile"`
	LogMaxSizeMB   int    `toml:"LogMaxSizeMB"`

	TelemetryEndpoint string `toml:"TelemetryEndpoint"`
	TelemetryInsecure bool   `toml:"TelemetryInsecure"`
	TelemetryHeaders  string `toml:"TelemetryHeaders"`
	TelemetryMetrics  bool   `toml:"TelemetryMetrics"`
	TelemetryTraces   bool   `toml:"TelemetryTraces"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./crossgate-data"
	}
	if strings.TrimSpace(cfg.Bounty) == "" {
		cfg.Bounty = "0"
	}
	if strings.TrimSpace(cfg.LogEnvironment) == "" {
		cfg.LogEnvironment = "local"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	gw, err := c.ParseGatewayAddress()
	if err != nil {
		return err
	}
	cgw, err := c.ParseCoGatewayAddress()
	if err != nil {
		return err
	}
	if gw == cgw {
		return fmt.Errorf("config: GatewayAddress and CoGatewayAddress must differ")
	}
	if _, err := c.ParseBounty(); err != nil {
		return err
	}
	return nil
}

// ParseGatewayAddress decodes the origin endpoint account.
func (c *Config) ParseGatewayAddress() ([20]byte, error) {
	return parseAddress("GatewayAddress", c.GatewayAddress)
}

// ParseCoGatewayAddress decodes the auxiliary endpoint account.
func (c *Config) ParseCoGatewayAddress() ([20]byte, error) {
	return parseAddress("CoGatewayAddress", c.CoGatewayAddress)
}

// ParseBounty decodes the bounty amount.
func (c *Config) ParseBounty() (*big.Int, error) {
	raw := strings.TrimSpace(c.Bounty)
	if raw == "" {
		return big.NewInt(0), nil
	}
	bounty, ok := new(big.Int).SetString(raw, 10)
	if !ok || bounty.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid Bounty %q", c.Bounty)
	}
	return bounty, nil
}

func parseAddress(field, raw string) ([20]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: invalid %s: %w", field, err)
	}
	if len(decoded) != 20 {
		return [20]byte{}, fmt.Errorf("config: %s must be 20 bytes, got %d", field, len(decoded))
	}
	var addr [20]byte
	copy(addr[:], decoded)
	if addr == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("config: %s is the zero address", field)
	}
	return addr, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:    ":8080",
		DataDir:          "./crossgate-data",
		GatewayAddress:   "0x1111111111111111111111111111111111111111",
		CoGatewayAddress: "0x2222222222222222222222222222222222222222",
		Bounty:           "0",
		TokenSymbol:      "UT",
		TokenName:        "Utility Token",
		LogEnvironment:   "local",
		LogMaxSizeMB:     100,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
