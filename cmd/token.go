package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/janw/rtscope/internal/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect and compare messaging tokens",
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Decode a token payload or bearer JWT",
	Long: `Decodes a messaging-token payload (JSON from a file, or "-" for stdin)
and prints its client id, channel capabilities, and expiry. A bare JWT
string is decoded as a bearer token instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readTokenInput(args)
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(string(data))
		if !strings.HasPrefix(trimmed, "{") {
			return inspectBearer(trimmed)
		}

		caps := token.Parse(data)
		if caps == nil {
			return fmt.Errorf("input is not a token payload")
		}
		printCapabilities(caps)
		return nil
	},
}

var tokenCompareCmd = &cobra.Command{
	Use:   "compare <old-file> <new-file>",
	Short: "Diff the channel capabilities of two token payloads",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldCaps, err := readCapabilities(args[0])
		if err != nil {
			return err
		}
		newCaps, err := readCapabilities(args[1])
		if err != nil {
			return err
		}

		diff := token.Compare(oldCaps, newCaps)
		printList("Added", diff.Added)
		printList("Removed", diff.Removed)
		printList("Unchanged", diff.Unchanged)
		return nil
	},
}

func readTokenInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

func readCapabilities(path string) (*token.Capabilities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	caps := token.Parse(data)
	if caps == nil {
		return nil, fmt.Errorf("%s is not a token payload", path)
	}
	return caps, nil
}

func inspectBearer(raw string) error {
	info, err := token.InspectBearer(raw)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printCapabilities(caps *token.Capabilities) {
	now := time.Now()
	fmt.Printf("Client ID: %s\n", orDash(caps.ClientID))
	if caps.ExpiresAt.IsZero() {
		fmt.Println("Expiry:    unknown")
	} else {
		fmt.Printf("Expiry:    %s (%s, %s)\n",
			caps.ExpiresAt.Format(time.RFC3339),
			caps.StatusAt(now),
			token.FormatExpiry(caps.ExpiresAt, now))
	}

	names := caps.ChannelNames()
	fmt.Printf("Channels:  %d\n", len(names))
	for _, name := range names {
		fmt.Printf("  %-40s %s\n", name, strings.Join(caps.Channels[name], ", "))
	}
}

func printList(label string, names []string) {
	fmt.Printf("%s (%d):\n", label, len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenInspectCmd)
	tokenCmd.AddCommand(tokenCompareCmd)
}
