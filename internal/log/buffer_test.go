package log

import (
	"log/slog"
	"testing"
)

func TestBufferHandlerStoresLines(t *testing.T) {
	buf := NewRingBuffer(10)
	h := NewBufferHandler(nil, buf) // nil wrapped handler is valid

	logger := slog.New(h)
	logger.Info("test message", "key", "value")

	lines := buf.Lines(10)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0] == "" {
		t.Error("expected non-empty line")
	}
}

func TestRingBufferEviction(t *testing.T) {
	buf := NewRingBuffer(3)

	buf.Add("line1")
	buf.Add("line2")
	buf.Add("line3")
	buf.Add("line4") // evicts line1

	lines := buf.Lines(10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "line2" {
		t.Errorf("expected oldest line to be 'line2', got %q", lines[0])
	}
	if lines[2] != "line4" {
		t.Errorf("expected newest line to be 'line4', got %q", lines[2])
	}
}

func TestRingBufferLinesLimit(t *testing.T) {
	buf := NewRingBuffer(10)
	for i := 0; i < 5; i++ {
		buf.Add("line")
	}

	lines := buf.Lines(3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestRingBufferTotal(t *testing.T) {
	buf := NewRingBuffer(3)
	buf.Add("line1")
	buf.Add("line2")

	if buf.Total() != 2 {
		t.Errorf("expected total 2, got %d", buf.Total())
	}

	buf.Add("line3")
	buf.Add("line4")
	if buf.Total() != 3 {
		t.Errorf("expected total 3 after wrap, got %d", buf.Total())
	}
}
