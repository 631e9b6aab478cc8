package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "undefined (dev?)"

// exitCode is set by subcommand handlers that need to report a process exit
// code distinct from "cobra itself failed" (e.g. a sync run that completed
// but left a failed or aborted album behind).
var exitCode int

var rootConfig struct {
	configPath string
	verbose    bool
}

var rootCommand = &cobra.Command{
	Use:           "aggsync",
	Short:         "Maintain a derived, transcoded audio library mirroring one or more source libraries.",
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       version,
}

func init() {
	cobra.EnableCommandSorting = false

	flags := rootCommand.PersistentFlags()
	flags.StringVarP(&rootConfig.configPath, "config", "c", defaultConfigPath(), "Path to aggsync's TOML configuration file.")
	flags.BoolVarP(&rootConfig.verbose, "verbose", "v", false, "Log detailed output to stderr. Suppresses progress indicators.")

	rootCommand.AddCommand(syncCommand, showConfigCommand)
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/aggsync/aggsync.toml"
	}
	return "aggsync.toml"
}

// mainify wraps a RunE-style entry point so a returned error both prints a
// "Error: ..." message (matching msync's main.go) and sets a nonzero process
// exit code, without each subcommand needing its own os.Exit call.
func mainify(entry func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := entry(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
			exitCode = 1
			return nil
		}
		return nil
	}
}
