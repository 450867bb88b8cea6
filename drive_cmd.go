package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/peerdrive/peerdrive-go/internal/drive"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create a drive with a fresh keypair",
		Long: `Create a drive backed by the given path (default: current directory)
and print its public key. With --ram the drive lives only in memory and
vanishes when the process exits, which is mostly useful for smoke tests.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [path]",
		Short: "Display a drive's key, backend, and version",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInfo,
	}
}

func newDestroyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy [path]",
		Short: "Delete a drive's local store",
		Long: `Delete the drive store under the given path (default: current
directory). Only the store directory is removed; mirrored source files
stay untouched. Destroying an absent store succeeds silently.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDestroy,
	}

	cmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	return cmd
}

// backendArg extracts the optional backend path argument.
func backendArg(args []string) string {
	if len(args) == 0 {
		return ""
	}

	return args[0]
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), backendArg(args), logger)
	if err != nil {
		return err
	}
	defer d.Close()

	statusf("Initialized drive at %s\n", d.Storage())
	fmt.Println(d.Key())

	return nil
}

// infoJSONOutput is the JSON output schema for the info command.
type infoJSONOutput struct {
	Key      string `json:"key"`
	Backend  string `json:"backend"`
	Version  uint64 `json:"version"`
	Entries  int    `json:"entries"`
	Writable bool   `json:"writable"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	d, err := openDrive(cmd.Context(), backendArg(args), logger)
	if err != nil {
		return err
	}
	defer d.Close()

	files, err := d.List("/")
	if err != nil {
		return fmt.Errorf("counting entries: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(infoJSONOutput{
			Key:      d.Key().String(),
			Backend:  d.Storage().String(),
			Version:  d.Version(),
			Entries:  len(files),
			Writable: d.Writable(),
		})
	}

	access := "read-only"
	if d.Writable() {
		access = "read-write"
	}

	fmt.Printf("Key:      %s\n", d.Key())
	fmt.Printf("Backend:  %s\n", d.Storage())
	fmt.Printf("Version:  %d\n", d.Version())
	fmt.Printf("Entries:  %d\n", len(files))
	fmt.Printf("Access:   %s\n", access)

	return nil
}

func runDestroy(cmd *cobra.Command, args []string) error {
	if flagRAM {
		// Nothing persists for a volatile drive; dropping the process
		// is the destroy.
		statusf("Volatile drive, nothing to destroy\n")
		return nil
	}

	backend := drive.Select(false, backendArg(args))

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}

	if !yes && drive.Exists(backend.Path) {
		if !confirm(fmt.Sprintf("Destroy drive store at %s?", backend.Path)) {
			statusf("Aborted\n")
			return nil
		}
	}

	if err := drive.Destroy(backend.Path); err != nil {
		return fmt.Errorf("destroying drive at %s: %w", backend.Path, err)
	}

	statusf("Destroyed drive store at %s\n", backend.Path)

	return nil
}

// confirm prompts on stdin for a y/N answer. Anything but an explicit yes
// declines.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)

	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}

	return answer == "y" || answer == "Y" || answer == "yes"
}
