package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	expandPaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads path if it exists and returns the defaults otherwise,
// so the tool works without a config file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the override chain: defaults, config file, environment,
// CLI flags. The config path itself comes from the CLI, then the
// environment, then the platform default.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	if env.TokenFile != "" {
		cfg.API.TokenFile = expandTilde(env.TokenFile)
	}

	if env.APIHost != "" {
		cfg.API.Host = env.APIHost
	}

	if cli.ShareID != nil {
		cfg.Transfers.ShareID = *cli.ShareID
	}

	if cli.LogLevel != "" {
		cfg.Logging.LogLevel = cli.LogLevel
	}

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}

func expandPaths(cfg *Config) {
	cfg.API.TokenFile = expandTilde(cfg.API.TokenFile)
	cfg.Journal.Path = expandTilde(cfg.Journal.Path)
}

// PartSizeBytes returns the configured part size in bytes. The config must
// have passed Validate.
func (c *Config) PartSizeBytes() int {
	n, _ := ParseSize(c.Transfers.PartSize) //nolint:errcheck // validated on load

	return int(n)
}

// BandwidthBytesPerSec returns the configured bandwidth limit, zero for
// unlimited. The config must have passed Validate.
func (c *Config) BandwidthBytesPerSec() int64 {
	n, _ := ParseRate(c.Transfers.BandwidthLimit) //nolint:errcheck // validated on load

	return n
}

// TimeoutDuration returns the HTTP client timeout. The config must have
// passed Validate.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Network.Timeout) //nolint:errcheck // validated on load

	return d
}
