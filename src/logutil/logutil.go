package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName = "screen_ask_debug.log"
	maxSizeMB   = 10
	maxArchives = 3
	maxAgeDays  = 28
)

// Setup routes the standard logger into a rotating file (10MB, 3 archives).
// When disabled, logs are discarded so the console prompt stays clean.
// The returned closer flushes the file and is safe to call when disabled.
func Setup(enableFileLogging bool, dir string) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !enableFileLogging {
		log.SetOutput(io.Discard)
		return nopCloser{}
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		log.SetOutput(io.Discard)
		return nopCloser{}
	}
	w := NewRotatingFile(filepath.Join(dir, logFileName))
	log.SetOutput(w)
	return w
}

// NewRotatingFile returns a size-rotated, compressed writer for path.
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxArchives,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}

// Sanitize makes user-supplied text safe for a single log line.
func Sanitize(text string) string {
	const maxLogLength = 100
	if len(text) > maxLogLength {
		text = text[:maxLogLength] + "..."
	}

	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			b.WriteString("\\n")
		case r == '\t':
			b.WriteString("\\t")
		case r < 32 || r == 127:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
