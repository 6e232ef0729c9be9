package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger: text on stdout, teed into a rotating
// file when cfg.Logging.File is set. The returned closer flushes the file.
func NewLogger(cfg *Config, workDir string) (*slog.Logger, func() error, error) {
	writers := []io.Writer{os.Stdout}
	closer := func() error { return nil }

	if cfg.Logging.File != "" {
		path := ResolvePath(workDir, cfg.Logging.File)
		if err := EnsureDir(filepath.Dir(path)); err != nil {
			return nil, nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, rotating)
		closer = rotating.Close
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(cfg.Logging.Level),
	})
	return slog.New(handler).With(slog.String("app", cfg.App.Name)), closer, nil
}

// ParseLevel maps debug/info/warn/error to a slog level; unknown is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
