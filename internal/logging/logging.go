package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ieee0824/twopass/internal/config"
)

// Configure sets up logrus with rotation.
func Configure(cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	switch strings.ToLower(cfg.Logging.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Paths.LogPath == "" {
		logger.SetOutput(os.Stderr)
		return logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.LogPath), 0o755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Paths.LogPath,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   false,
	}
	if cfg.Logging.Stdout {
		logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		logger.SetOutput(rotator)
	}
	return logger, nil
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
