package config

import (
	"os"
	"strconv"
)

// Environment variable names for overrides.
const (
	EnvConfig = "PEERDRIVE_CONFIG"
	EnvKey    = "PEERDRIVE_KEY"
	EnvPort   = "PEERDRIVE_PORT"
	EnvDebug  = "PEERDRIVE_DEBUG"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // PEERDRIVE_CONFIG: override config file path
	Key        string // PEERDRIVE_KEY: hex public key for the drive
	Port       int    // PEERDRIVE_PORT: HTTP bridge port (0 = unset)
	Debug      bool   // PEERDRIVE_DEBUG: enable the debug trace channel
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify the Config; Resolve applies the relevant
// fields. A malformed PEERDRIVE_PORT is ignored rather than fatal so that
// a stale environment cannot brick every invocation.
func ReadEnvOverrides() EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Key:        os.Getenv(EnvKey),
	}

	if raw := os.Getenv(EnvPort); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			env.Port = port
		}
	}

	switch os.Getenv(EnvDebug) {
	case "1", "true", "yes":
		env.Debug = true
	}

	return env
}
