package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work without any config file present.
const (
	defaultPort     = 3000
	defaultLogLevel = "info"
)

// DefaultConfig returns a Config populated with all default values.
// Used both as the starting point for TOML decoding (so unset fields
// retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Drive: DriveConfig{
			Sparse:         true,
			SparseMetadata: false,
		},
		Network: NetworkConfig{
			Port: defaultPort,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
		Aliases: DefaultAliases(),
	}
}

// DefaultAliases returns the built-in command alias table. A config file
// may extend or replace individual entries; the canonical command names are
// fixed by the CLI.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"init":     {"create"},
		"info":     {"key"},
		"stat":     {"st"},
		"read":     {"cat"},
		"write":    {"put", "import"},
		"unlink":   {"rm", "del"},
		"readdir":  {"ls", "dir"},
		"download": {"dl", "fetch"},
		"upload":   {"ul", "seed"},
		"serve":    {"share"},
		"destroy":  {"purge"},
	}
}
