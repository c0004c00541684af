package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "soundd",
	Short: "Privilege-separated background music player daemon",
	Long: `soundd is a background music player daemon split into a main
process that owns the playlist and control socket, and a player-worker
subprocess that owns audio decoding and device output. The two talk
over a private socketpair with file descriptors passed across it for
each track handoff.

Run "soundd serve" to start the daemon.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
