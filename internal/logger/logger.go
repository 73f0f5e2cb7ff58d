// Package logger prints tagged console lines for the CLI and the API server.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// stdout resolves os.Stdout on every write so redirected output is honoured.
type stdout struct{}

func (stdout) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

var (
	mu  sync.RWMutex
	log = newLogger(stdout{}, slog.LevelInfo)
)

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// SetLevel changes the minimum level printed ("debug", "info", "warn", "error").
func SetLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	mu.Lock()
	log = newLogger(stdout{}, l)
	mu.Unlock()
}

// Slog returns the underlying structured logger.
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Err wraps an error as a colourised slog attribute.
var Err = tint.Err

// Debug logs a tagged debug line.
func Debug(tag, msg string, attrs ...any) {
	Slog().Debug(msg, append([]any{slog.String("tag", tag)}, attrs...)...)
}

// Info logs an informational message under tag.
func Info(tag, msg string, attrs ...any) {
	Slog().Info(msg, append([]any{slog.String("tag", tag)}, attrs...)...)
}

// Success logs a completed step at info level.
func Success(tag, msg string, attrs ...any) {
	Slog().Info(msg, append([]any{slog.String("tag", tag), slog.Bool("ok", true)}, attrs...)...)
}

// Warn logs a recoverable problem.
func Warn(tag, msg string, attrs ...any) {
	Slog().Warn(msg, append([]any{slog.String("tag", tag)}, attrs...)...)
}

// Error logs a failure.
func Error(tag, msg string, attrs ...any) {
	Slog().Error(msg, append([]any{slog.String("tag", tag)}, attrs...)...)
}

// Banner prints the startup banner.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(stdout{}, "\n  EVE Deal Finder %s\n  station trading opportunities from live ESI data\n\n", version)
}

// Section prints a section header.
func Section(title string) {
	fmt.Fprintf(stdout{}, "\n── %s %s\n", title, strings.Repeat("─", max(0, 48-len(title))))
}

// Stats prints a single aligned key/value line.
func Stats(key string, value any) {
	fmt.Fprintf(stdout{}, "  %-22s %v\n", key, value)
}

// Server logs the listen address.
func Server(addr string) {
	Info("Server", "Listening", slog.String("addr", "http://"+addr))
}
