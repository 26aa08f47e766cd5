// Command ceacore is the control-core daemon: it loads a zone/device
// configuration, opens the state bus and persistent store, and runs the
// periodic control loop (spec §5) until signaled to stop.
//
// Usage:
//
//	ceacore run --config /etc/ceacore/config.yaml
//	ceacore validate-config --config /etc/ceacore/config.yaml
//	ceacore version
//
// Grounded on mash-go's cmd/mash-docgen and mash-featgen subcommand
// dispatch, generalized to github.com/spf13/cobra per the rest of the
// retrieval pack's service daemons.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ceacore",
	Short: "Controlled-environment agriculture control core",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ceacore %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML configuration file")
	rootCmd.AddCommand(versionCmd, runCmd, validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
