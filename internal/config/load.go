package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Maximum valid TCP port.
const maxPort = 65535

// Resolved is the effective configuration after the full override chain,
// ready for use by command handlers.
type Resolved struct {
	Drive   DriveConfig
	Network NetworkConfig
	Logging LoggingConfig
	Aliases *AliasIndex
	Debug   bool
	Key     string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The precedence order ensures CLI flags always win, matching user
// expectations for one-off overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// Config-file alias entries extend the defaults; a file entry for a
	// canonical command replaces that command's default alias list.
	aliases := DefaultAliases()
	for canonical, list := range cfg.Aliases {
		aliases[canonical] = list
	}

	idx, err := BuildAliasIndex(aliases)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		Drive:   cfg.Drive,
		Network: cfg.Network,
		Logging: cfg.Logging,
		Aliases: idx,
		Debug:   env.Debug,
		Key:     env.Key,
	}

	if env.Port > 0 {
		resolved.Network.Port = env.Port
	}

	if cli.PortSet {
		resolved.Network.Port = cli.Port
	}

	return resolved, nil
}

// validate checks configuration values parsed from a file. Defaults are
// valid by construction, so only file-supplied values can fail here.
func validate(cfg *Config) error {
	if cfg.Network.Port < 1 || cfg.Network.Port > maxPort {
		return fmt.Errorf("network.port must be 1-%d, got %d", maxPort, cfg.Network.Port)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", cfg.Logging.Level)
	}

	return nil
}
