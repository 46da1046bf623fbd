package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestFileLogger_FormatsLevelAndTimestamp(t *testing.T) {
	out := &bufferCloser{}
	log := newFileLogger(out)
	log.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	log.Info("[IngestAgent] decoded %d frames", 20)
	log.Error("[IngestAgent] bad batch: %v", "eof")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), out.String())
	}
	want := "2025-03-01T12:00:00Z [INFO] [IngestAgent] decoded 20 frames"
	if lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if !strings.Contains(lines[1], "[ERROR] [IngestAgent] bad batch: eof") {
		t.Errorf("line 1 = %q, want error line", lines[1])
	}

	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !out.closed {
		t.Error("Close() did not close the underlying writer")
	}
}

func TestSilentLogger_ImplementsLogger(t *testing.T) {
	var l Logger = NewSilentLogger()
	l.Info("ignored %d", 1)
	l.Error("ignored")
	l.Debug("ignored")
}
