// Command ceactl is an interactive operator shell over the control core's
// operator-facing contract (spec §6): get_device_state, apply_manual,
// set_device_mode, upsert_setpoint, upsert_schedule, upsert_rule,
// set_pid_params, get_failsafe, clear_failsafe, ack_alarm.
//
// It opens the same SQLite store the ceacore daemon runs against (it does
// not connect to the state bus), as a local admin tool rather than a network client (spec
// explicitly puts the external API surface out of scope; this shell
// exercises the same operator.API a future network layer would wrap).
//
// Usage:
//
//	ceactl shell --config /etc/ceacore/config.yaml
//
// Grounded on mash-go's cmd/mash-device interactive command loop,
// generalized from bufio.NewReader to github.com/chzyer/readline for
// history and line editing, per SPEC_FULL.md §10's CLI convention.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ceactl",
	Short: "Interactive operator shell for the control core",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ceactl dev")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML configuration file")
	rootCmd.AddCommand(versionCmd, shellCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
