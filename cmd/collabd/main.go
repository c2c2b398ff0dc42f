package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collabd",
		Short: "Collaborative lab-session coordination server",
		Long: `collabd coordinates shared lab-simulation sessions for the
e-learning platform: learners join a session over a websocket, chat,
annotate the equipment view, and stay synchronized on the current
simulation step.

Sessions are memory-resident and ephemeral; a session lives exactly as
long as it has connected participants.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
