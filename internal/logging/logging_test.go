package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
)

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatalf("unexpected debug level")
	}
	if parseLevel("WARNING") != slog.LevelWarn {
		t.Fatalf("unexpected warn level")
	}
	if parseLevel("") != slog.LevelInfo {
		t.Fatalf("unexpected default level")
	}
}

func TestNewLoggerStdoutOnly(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "info"})
	if err != nil || logger == nil {
		t.Fatalf("unexpected result: %v", err)
	}
}

func TestNewLoggerRejectsInvalidRotation(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", LogDir: t.TempDir(), MaxSizeMB: 0, MaxBackups: 1, MaxAgeDays: 1}
	if _, err := NewLogger(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := config.LoggingConfig{Level: "info", LogDir: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}
	logger, err := NewLogger(cfg)
	if err != nil || logger == nil {
		t.Fatalf("unexpected result: %v", err)
	}
}
