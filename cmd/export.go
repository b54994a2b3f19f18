package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/janw/rtscope/internal/archive"
	"github.com/janw/rtscope/internal/eventlog"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a running console's event log",
	Long: `Fetches the event log from a running console and writes it as JSON
lines to the local export directory or an S3 bucket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		consoleURL, _ := cmd.Flags().GetString("console-url")
		key, _ := cmd.Flags().GetString("key")
		exportDir, _ := cmd.Flags().GetString("export-dir")

		resp, err := http.Get(consoleURL + "/api/v1/events")
		if err != nil {
			return fmt.Errorf("failed to reach console: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("console returned status %d", resp.StatusCode)
		}

		var entries []eventlog.Entry
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			return fmt.Errorf("failed to decode event log: %w", err)
		}

		sink, err := buildExportSink(cmd, exportDir)
		if err != nil {
			return err
		}
		if key == "" {
			key = archive.DefaultKey(time.Now())
		}

		if err := archive.Export(cmd.Context(), sink, key, entries); err != nil {
			return err
		}
		fmt.Printf("Exported %d entries to %s\n", len(entries), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("console-url", "http://127.0.0.1:8080", "Base URL of the running console")
	exportCmd.Flags().String("key", "", "Export key (default derives from the current time)")
	exportCmd.Flags().String("export-dir", "./exports", "Directory for local exports")
	exportCmd.Flags().String("export-s3-bucket", "", "S3 bucket for exports (overrides --export-dir)")
	exportCmd.Flags().String("export-s3-region", "", "S3 region")
	exportCmd.Flags().String("export-s3-endpoint", "", "S3 endpoint URL (for S3-compatible services)")
	exportCmd.Flags().Bool("export-s3-path-style", false, "Force path-style S3 addressing (MinIO)")
	exportCmd.Flags().String("export-s3-prefix", "", "Key prefix for S3 exports")
}
