package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for logging throughout the telemetry stack.
// Components prefix their messages with their own name, e.g. "[IngestAgent]".
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes human-readable logs to stdout/stderr.
// Used by headless commands (ingest, simulate, replay, bridge).
type ConsoleLogger struct{}

func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	fmt.Printf("[INFO] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	fmt.Printf("[DEBUG] "+msg+"\n", args...)
}

// SilentLogger discards all log messages.
// Used by the dashboard and the MCP server, where stdout belongs to the
// terminal UI or the protocol stream.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}

// FileLogger writes timestamped lines to a size-rotated log file.
type FileLogger struct {
	mu  sync.Mutex
	out io.WriteCloser
	now func() time.Time
}

// NewFileLogger opens a rotating log at path. Files rotate at 10 MB and
// three compressed backups are kept for a week.
func NewFileLogger(path string) *FileLogger {
	return newFileLogger(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})
}

func newFileLogger(out io.WriteCloser) *FileLogger {
	return &FileLogger{out: out, now: time.Now}
}

func (f *FileLogger) Info(msg string, args ...interface{})  { f.write("INFO", msg, args...) }
func (f *FileLogger) Error(msg string, args ...interface{}) { f.write("ERROR", msg, args...) }
func (f *FileLogger) Debug(msg string, args ...interface{}) { f.write("DEBUG", msg, args...) }

// Close flushes and closes the underlying file.
func (f *FileLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Close()
}

func (f *FileLogger) write(level, msg string, args ...interface{}) {
	line := fmt.Sprintf("%s [%s] %s\n", f.now().UTC().Format(time.RFC3339Nano), level, fmt.Sprintf(msg, args...))
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = io.WriteString(f.out, line)
}
