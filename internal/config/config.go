// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for peerdrive. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// The config file also carries the command alias table; alias resolution
// itself lives in AliasIndex so duplicate registration fails at load time
// instead of silently winning by iteration order.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Drive   DriveConfig         `toml:"drive"`
	Network NetworkConfig       `toml:"network"`
	Logging LoggingConfig       `toml:"logging"`
	Aliases map[string][]string `toml:"aliases"`
}

// DriveConfig holds default drive open options. Sparse storage keeps only
// fetched blocks on disk; sparse metadata does the same for the namespace
// index.
type DriveConfig struct {
	Sparse         bool `toml:"sparse"`
	SparseMetadata bool `toml:"sparse_metadata"`
}

// NetworkConfig controls the HTTP bridge bind port and the swarm peers
// dialed by replication sessions.
type NetworkConfig struct {
	Port  int      `toml:"port"`
	Peers []string `toml:"peers"`
}

// LoggingConfig controls the slog baseline level. CLI flags (--debug,
// --quiet) override it because flags always win.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// CLIOverrides holds values from command-line flags, the highest-priority
// layer of the override chain. PortSet distinguishes an explicit --port 0
// from the flag being untouched.
type CLIOverrides struct {
	ConfigPath string
	Port       int
	PortSet    bool
}
