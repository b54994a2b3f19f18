package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/janw/rtscope/internal/archive"
	"github.com/janw/rtscope/internal/console"
	"github.com/janw/rtscope/internal/realtime"
	"github.com/janw/rtscope/internal/store"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the debugging console server",
	Long:  `Starts the console HTTP server: connection and channel actions, state snapshots, the live event feed, and event-log export.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		dbPath, _ := cmd.Flags().GetString("db")
		wsURL, _ := cmd.Flags().GetString("ws-url")
		exportDir, _ := cmd.Flags().GetString("export-dir")
		logCapacity, _ := cmd.Flags().GetInt("event-capacity")

		if wsURL == "" {
			wsURL = os.Getenv("RTSCOPE_WS_URL")
		}
		if wsURL == "" {
			return fmt.Errorf("realtime websocket URL is required (--ws-url or RTSCOPE_WS_URL)")
		}

		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		exports, err := buildExportSink(cmd, exportDir)
		if err != nil {
			return err
		}

		ctrl := realtime.NewController(
			realtime.WSFactory(realtime.WSConfig{URL: wsURL}),
			realtime.Config{LogCapacity: logCapacity},
		)
		defer ctrl.Disconnect()

		srv := console.New(ctrl, st, exports)
		addr := fmt.Sprintf("%s:%d", host, port)

		fmt.Printf("Starting rtscope console on %s\n", addr)
		fmt.Printf("  API:        http://%s/api/v1\n", addr)
		fmt.Printf("  Event feed: ws://%s/api/v1/events/feed\n", addr)
		fmt.Printf("  Realtime:   %s\n", wsURL)

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-stop:
		}

		fmt.Println("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

// buildExportSink selects the export destination: an S3 bucket when
// configured, the local export directory otherwise.
func buildExportSink(cmd *cobra.Command, exportDir string) (archive.Sink, error) {
	bucket, _ := cmd.Flags().GetString("export-s3-bucket")
	if bucket == "" {
		bucket = os.Getenv("RTSCOPE_EXPORT_S3_BUCKET")
	}

	if bucket != "" {
		region, _ := cmd.Flags().GetString("export-s3-region")
		endpoint, _ := cmd.Flags().GetString("export-s3-endpoint")
		pathStyle, _ := cmd.Flags().GetBool("export-s3-path-style")
		prefix, _ := cmd.Flags().GetString("export-s3-prefix")

		sink, err := archive.NewS3(cmd.Context(), archive.S3Config{
			Bucket:          bucket,
			Region:          region,
			Endpoint:        endpoint,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			UsePathStyle:    pathStyle,
			Prefix:          prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure S3 export: %w", err)
		}
		return sink, nil
	}

	sink, err := archive.NewLocal(exportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to configure local export: %w", err)
	}
	return sink, nil
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	consoleCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	consoleCmd.Flags().String("db", "rtscope.db", "Path to the settings database")
	consoleCmd.Flags().String("ws-url", "", "Realtime websocket endpoint, e.g. wss://host/realtime/ws")
	consoleCmd.Flags().Int("event-capacity", 0, "Event log capacity (default 500, clamped to 100-10000)")
	consoleCmd.Flags().String("export-dir", "./exports", "Directory for local event-log exports")
	consoleCmd.Flags().String("export-s3-bucket", "", "S3 bucket for exports (overrides --export-dir)")
	consoleCmd.Flags().String("export-s3-region", "", "S3 region")
	consoleCmd.Flags().String("export-s3-endpoint", "", "S3 endpoint URL (for S3-compatible services)")
	consoleCmd.Flags().Bool("export-s3-path-style", false, "Force path-style S3 addressing (MinIO)")
	consoleCmd.Flags().String("export-s3-prefix", "", "Key prefix for S3 exports")
}
