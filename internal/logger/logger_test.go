package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abhisek/gradewise/internal/config"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestCore_JSONToStderr(t *testing.T) {
	var buf bytes.Buffer
	log := zap.New(newCore(config.LogConfig{Format: "json"}, zapcore.InfoLevel, zapcore.AddSync(&buf)))

	log.Debug("hidden")
	log.Info("graded", zap.String("attempt", "a1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at info level, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "graded" || entry["attempt"] != "a1" || entry["level"] != "info" {
		t.Errorf("entry = %v", entry)
	}
}

func TestCore_TeesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gradewise.log")
	var buf bytes.Buffer
	cfg := config.LogConfig{Format: "console", File: path, MaxSizeMB: 1}
	log := zap.New(newCore(cfg, zapcore.InfoLevel, zapcore.AddSync(&buf)))

	log.Warn("review queue full")
	_ = log.Sync()

	if !strings.Contains(buf.String(), "review queue full") {
		t.Errorf("console output missing message: %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"review queue full"`) {
		t.Errorf("file output = %q", data)
	}
}
