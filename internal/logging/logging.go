// Package logging writes a session's structured event stream as JSON lines.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event names, used as the log message of each entry.
const (
	EventSessionStart      = "session_start"
	EventUserMessage       = "user_message"
	EventAssistantReply    = "assistant_reply"
	EventCompaction        = "compaction"
	EventCompactionFailed  = "compaction_failed"
	EventThresholdExceeded = "threshold_exceeded"
	EventSessionEnd        = "session_end"
	EventExport            = "export"
)

// Logger is a zap logger bound to one session's log file.
type Logger struct {
	*zap.Logger
	Path string

	file *os.File
}

// Open creates {dir}/{sessionID}.jsonl and returns a logger writing to it.
// An empty dir tries the default locations in order, falling through to
// the next when one is not writable. Every entry carries session_id.
func Open(dir, sessionID, level string) (*Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	dirs := []string{dir}
	if strings.TrimSpace(dir) == "" {
		dirs = logDirs()
	}

	var lastErr error
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			lastErr = fmt.Errorf("create log directory %s: %w", d, err)
			continue
		}
		path := filepath.Join(d, sessionID+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			lastErr = fmt.Errorf("open log %s: %w", path, err)
			continue
		}

		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(f), lvl)
		zl := zap.New(core, zap.ErrorOutput(zapcore.AddSync(f))).
			With(zap.String("session_id", sessionID))
		return &Logger{Logger: zl, Path: path, file: f}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no writable log directory found")
	}
	return nil, lastErr
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.Sync()
	err := l.file.Close()
	l.file = nil
	return err
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "event"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return cfg
}

// logDirs returns candidate directories in priority order.
// 1) PARLEY_LOG_DIR
// 2) ~/.local/share/parley/logs
// 3) $TMPDIR/parley/logs
func logDirs() []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	add(os.Getenv("PARLEY_LOG_DIR"))
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".local", "share", "parley", "logs"))
	}
	add(filepath.Join(os.TempDir(), "parley", "logs"))
	return dirs
}
