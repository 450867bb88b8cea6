package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Network.Port)
	assert.True(t, cfg.Drive.Sparse)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
[network]
port = 8080
peers = ["peer1:7000"]

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Network.Port)
	assert.Equal(t, []string{"peer1:7000"}, cfg.Network.Peers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections retain defaults.
	assert.True(t, cfg.Drive.Sparse)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"port too low", "[network]\nport = 0\n"},
		{"port too high", "[network]\nport = 70000\n"},
		{"bad log level", "[logging]\nlevel = \"loud\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	path := writeConfigFile(t, "[network]\nport = 4000\n")

	// File beats defaults.
	resolved, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, 4000, resolved.Network.Port)

	// Env beats file.
	resolved, err = Resolve(EnvOverrides{Port: 5000}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, 5000, resolved.Network.Port)

	// CLI beats env.
	resolved, err = Resolve(EnvOverrides{Port: 5000}, CLIOverrides{ConfigPath: path, Port: 6000, PortSet: true})
	require.NoError(t, err)
	assert.Equal(t, 6000, resolved.Network.Port)
}

func TestResolveAliasExtension(t *testing.T) {
	path := writeConfigFile(t, "[aliases]\nread = [\"view\"]\n")

	resolved, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	canonical, ok := resolved.Aliases.Resolve("view")
	require.True(t, ok)
	assert.Equal(t, "read", canonical)

	// File entry replaced read's default alias list entirely.
	_, ok = resolved.Aliases.Resolve("cat")
	assert.False(t, ok)

	// Other commands keep their defaults.
	canonical, ok = resolved.Aliases.Resolve("ls")
	require.True(t, ok)
	assert.Equal(t, "readdir", canonical)
}

func TestResolveDuplicateAliasFails(t *testing.T) {
	path := writeConfigFile(t, "[aliases]\nread = [\"ls\"]\n")

	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ls")
}
