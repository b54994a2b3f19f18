package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/janw/rtscope/internal/channelname"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Work with channel names",
}

var channelDescribeCmd = &cobra.Command{
	Use:   "describe <name>...",
	Short: "Parse channel names and print their structure",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			fmt.Printf("%s\n", name)
			fmt.Printf("  Label:    %s\n", channelname.Format(name))
			fmt.Printf("  Resource: %s\n", orDash(channelname.ResourceType(name)))
			fmt.Printf("  Presence: %v\n", channelname.SupportsPresence(name))
			if channelname.IsWildcard(name) {
				fmt.Printf("  Wildcard: yes\n")
			}
		}
		return nil
	},
}

var channelMatchCmd = &cobra.Command{
	Use:   "match <pattern> <name>...",
	Short: "Test channel names against a wildcard pattern",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := args[0]
		for _, name := range args[1:] {
			verdict := "no match"
			if channelname.MatchesWildcard(name, pattern) {
				verdict = "match"
			}
			fmt.Printf("%-40s %s\n", name, verdict)
		}
		return nil
	},
}

var channelBuildCmd = &cobra.Command{
	Use:   "build <tenantId> <sessionInstanceId> <resource> [id]",
	Short: "Assemble a channel name from its parts",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		parts := []string{args[0], args[1], args[2]}
		if len(args) == 4 {
			parts = append(parts, args[3])
		}
		fmt.Println(strings.Join(parts, ":"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(channelCmd)
	channelCmd.AddCommand(channelDescribeCmd)
	channelCmd.AddCommand(channelMatchCmd)
	channelCmd.AddCommand(channelBuildCmd)
}
