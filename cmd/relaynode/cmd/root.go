// Package cmd implements the relaynode demo binary's CLI commands using
// cobra, following the package layout and Execute() entry point of
// firestige-Otus/cmd/root.go.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "relaynode",
	Short: "Run a drone-mesh content-serving node",
	Long: `relaynode wires two in-process content-serving nodes — a file
server and a media server — together over channels, demonstrating the
flood discovery, source-routed fragment delivery, and ack/nack retry
machinery of the underlying engine without any real radio transport.`,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional; defaults apply otherwise)")
	rootCmd.AddCommand(runCmd)
}
