// Package archive exports event-log snapshots to durable storage, either a
// local directory or an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/janw/rtscope/internal/eventlog"
)

// Sink stores one exported artifact under a key.
// Implementations must be safe for concurrent use.
type Sink interface {
	Store(ctx context.Context, key string, data []byte, contentType string) error
}

// DefaultKey names an export after its capture time.
func DefaultKey(now time.Time) string {
	return "events-" + now.UTC().Format("20060102-150405") + ".jsonl"
}

// Export writes the entries to the sink as JSON lines, one entry per line,
// oldest first.
func Export(ctx context.Context, sink Sink, key string, entries []eventlog.Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", entry.ID, err)
		}
	}
	if err := sink.Store(ctx, key, buf.Bytes(), "application/jsonl"); err != nil {
		return fmt.Errorf("failed to store export %s: %w", key, err)
	}
	return nil
}
