// Package util provides logging setup and process introspection shared
// across the agent's entrypoint and components.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kongor-project/bercon/internal/config"
)

// NewLogger builds the agent's root logger from opts: JSON lines
// appended to a run-stamped file under opts.Directory (when set), plus
// an optional human-readable stderr stream. Components derive their own
// loggers from the returned one. The close func releases the log file;
// it is safe to call when file output is disabled.
func NewLogger(opts config.LogOptions) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("util: unknown log level %q: %w", opts.Level, err)
	}

	var sinks []io.Writer
	closeFile := func() {}

	if opts.Directory != "" {
		if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("util: create log directory: %w", err)
		}
		name := fmt.Sprintf("rconagent-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.OpenFile(filepath.Join(opts.Directory, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("util: open log file: %w", err)
		}
		sinks = append(sinks, f)
		closeFile = func() { f.Close() }
		pruneRunLogs(opts.Directory, opts.MaxAge, name)
	}

	if opts.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	if len(sinks) == 0 {
		sinks = append(sinks, io.Discard)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closeFile, nil
}

// pruneRunLogs removes run logs older than maxAge. The current run's
// file is exempt so clock skew can never delete the active log.
func pruneRunLogs(dir string, maxAge time.Duration, current string) {
	if maxAge <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" || e.Name() == current {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		os.Remove(filepath.Join(dir, e.Name()))
	}
}
