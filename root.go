package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/peerdrive/peerdrive-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagKey        string
	flagDebug      bool
	flagQuiet      bool
	flagJSON       bool
	flagRAM        bool
	flagPort       int
	flagStart      int64
	flagEnd        int64
	flagLength     int64
)

// resolvedCfg holds the effective configuration. It is loaded before the
// command tree is built (the alias table shapes the tree itself) and
// finalized by PersistentPreRunE once flags are parsed.
var resolvedCfg *config.Resolved

// newRootCmd builds the fully-assembled root command. Configuration loads
// first because the command alias table comes from it; flag-level
// overrides are applied in PersistentPreRunE after parsing.
func newRootCmd() (*cobra.Command, error) {
	env := config.ReadEnvOverrides()
	cli := config.CLIOverrides{ConfigPath: preScanConfigFlag(os.Args[1:])}

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return nil, err
	}

	resolvedCfg = resolved

	cmd := &cobra.Command{
		Use:     "peerdrive",
		Short:   "Versioned, replicable drives from the command line",
		Long:    "peerdrive manages versioned, content-addressable drives reachable by keypair,\nreplicates them between peers, and serves them over HTTP.",
		Version: version,
		// Silence cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyFlagOverrides(cmd)
			return nil
		},
		// Invoked only when no subcommand token was given: print usage
		// and fail, so an empty invocation exits 1.
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errors.New("no command given")
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVarP(&flagKey, "key", "k", "", "drive public key (hex)")
	cmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "D", false, "enable the debug trace channel")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress status output")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagRAM, "ram", "M", false, "use the volatile in-memory backend")
	cmd.PersistentFlags().IntVarP(&flagPort, "port", "p", resolved.Network.Port, "HTTP bridge port")
	cmd.PersistentFlags().Int64VarP(&flagStart, "start", "S", 0, "transfer range start offset")
	cmd.PersistentFlags().Int64VarP(&flagEnd, "end", "E", 0, "transfer range end offset")
	cmd.PersistentFlags().Int64VarP(&flagLength, "length", "L", 0, "transfer range byte count")

	// -V shorthand for the built-in version flag.
	cmd.Flags().BoolP("version", "V", false, "version for peerdrive")

	// Register subcommands with aliases from the resolved table.
	for _, sub := range []*cobra.Command{
		newInitCmd(),
		newInfoCmd(),
		newStatCmd(),
		newReadCmd(),
		newWriteCmd(),
		newUnlinkCmd(),
		newReaddirCmd(),
		newUploadCmd(),
		newDownloadCmd(),
		newServeCmd(),
		newDestroyCmd(),
	} {
		sub.Aliases = resolved.Aliases.AliasesFor(sub.Name())
		cmd.AddCommand(sub)
	}

	return cmd, nil
}

// preScanConfigFlag extracts --config from raw args before cobra parses
// them. The config file must load before the command tree exists because
// it carries the alias table.
func preScanConfigFlag(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			return ""
		}

		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}

		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}

	return ""
}

// applyFlagOverrides folds parsed flag values into the resolved config.
// Flags win over environment and file values.
func applyFlagOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("port") {
		resolvedCfg.Network.Port = flagPort
	}

	if flagDebug {
		resolvedCfg.Debug = true
	}

	if flagKey != "" {
		resolvedCfg.Key = flagKey
	}
}

// buildLogger creates the slog.Logger backing the debug trace channel.
// The baseline level comes from config; --debug and --quiet override it.
// Timestamps are dropped on interactive terminals for readability.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		if resolvedCfg.Debug {
			level = slog.LevelDebug
		}
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}

			return a
		}
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintln(os.Stderr, "Run 'peerdrive --help' for usage.")
	os.Exit(1)
}
