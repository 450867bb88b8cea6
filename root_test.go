package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerdrive/peerdrive-go/internal/config"
	"github.com/peerdrive/peerdrive-go/internal/drive"
)

func TestPreScanConfigFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"absent", []string{"stat", "/a"}, ""},
		{"separate value", []string{"--config", "/tmp/c.toml", "stat"}, "/tmp/c.toml"},
		{"equals form", []string{"--config=/tmp/c.toml"}, "/tmp/c.toml"},
		{"stops at terminator", []string{"--", "--config", "/tmp/c.toml"}, ""},
		{"trailing flag without value", []string{"stat", "--config"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preScanConfigFlag(tt.args))
		})
	}
}

func TestBuildLoggerLevels(t *testing.T) {
	oldCfg := resolvedCfg
	oldQuiet := flagQuiet

	t.Cleanup(func() {
		resolvedCfg = oldCfg
		flagQuiet = oldQuiet
	})

	resolved, err := config.Resolve(config.EnvOverrides{}, config.CLIOverrides{})
	require.NoError(t, err)

	resolvedCfg = resolved
	flagQuiet = false

	t.Run("default is info", func(t *testing.T) {
		logger := buildLogger()
		assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
		assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("debug enables trace channel", func(t *testing.T) {
		resolvedCfg.Debug = true
		t.Cleanup(func() { resolvedCfg.Debug = false })

		logger := buildLogger()
		assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("quiet drops to error", func(t *testing.T) {
		flagQuiet = true
		t.Cleanup(func() { flagQuiet = false })

		logger := buildLogger()
		assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
		assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	})
}

func TestRootCmdRegistersAliases(t *testing.T) {
	cmd, err := newRootCmd()
	require.NoError(t, err)

	byName := make(map[string][]string)
	for _, sub := range cmd.Commands() {
		byName[sub.Name()] = sub.Aliases
	}

	assert.Contains(t, byName["read"], "cat")
	assert.Contains(t, byName["write"], "put")
	assert.Contains(t, byName["readdir"], "ls")
	assert.Contains(t, byName["destroy"], "purge")
}

func TestRootCmdNoCommandFails(t *testing.T) {
	cmd, err := newRootCmd()
	require.NoError(t, err)

	cmd.SetArgs(nil)

	execErr := cmd.Execute()
	require.Error(t, execErr)
	assert.Contains(t, execErr.Error(), "no command given")
}

func TestRootCmdUnknownCommandFails(t *testing.T) {
	cmd, err := newRootCmd()
	require.NoError(t, err)

	cmd.SetArgs([]string{"frobnicate"})

	execErr := cmd.Execute()
	require.Error(t, execErr)
	assert.Contains(t, execErr.Error(), "frobnicate")
}

func TestApplyFlagOverrides(t *testing.T) {
	oldCfg := resolvedCfg
	t.Cleanup(func() { resolvedCfg = oldCfg })

	cmd, err := newRootCmd()
	require.NoError(t, err)

	read, _, findErr := cmd.Find([]string{"read"})
	require.NoError(t, findErr)

	// PersistentPreRunE has already folded flags in by the time the
	// handler runs.
	read.RunE = func(*cobra.Command, []string) error { return nil }

	cmd.SetArgs([]string{"read", "/x", "--port", "4500", "--debug", "--key", "abc123"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, 4500, resolvedCfg.Network.Port)
	assert.True(t, resolvedCfg.Debug)
	assert.Equal(t, "abc123", resolvedCfg.Key)
}

func TestTransferRangeFromFlags(t *testing.T) {
	cmd, err := newRootCmd()
	require.NoError(t, err)

	read, _, findErr := cmd.Find([]string{"read"})
	require.NoError(t, findErr)

	// Capture the range as the handler would see it after flag parsing.
	var rng drive.Range

	read.RunE = func(c *cobra.Command, _ []string) error {
		rng = transferRange(c)
		return nil
	}

	cmd.SetArgs([]string{"read", "/x", "-S", "5", "-L", "10"})
	require.NoError(t, cmd.Execute())

	assert.True(t, rng.HasStart)
	assert.False(t, rng.HasEnd)
	assert.True(t, rng.HasLength)
	assert.Equal(t, int64(5), rng.Start)
	assert.Equal(t, int64(10), rng.Length)
}
