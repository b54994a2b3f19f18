package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/janw/rtscope/internal/log"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "rtscope",
	Short:   "Realtime messaging debugging console",
	Long:    `A debugging console for realtime messaging sessions: connect with backend-issued tokens, subscribe to channels, track presence, and inspect the event stream.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		log.Init(&log.Config{
			Level:       level,
			Format:      format,
			BufferLines: 1000,
		})
	},
}

func init() {
	rootCmd.SetVersionTemplate("rtscope version {{.Version}}\n")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
