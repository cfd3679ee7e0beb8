package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camsync/internal/config"
)

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestLogger_WritesPerLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l := NewLogger(&config.Config{LogDirectory: dir, LogLevel: "info"})

	l.Debug("hidden %d", 1)
	l.Info("bundle %d published", 7)
	l.Warning("port %d stalled", 2)
	l.Error("table %s", "broken")

	info := readLog(t, dir, "info.log")
	if !strings.Contains(info, "bundle 7 published") {
		t.Errorf("info.log missing entry: %q", info)
	}
	if strings.Contains(info, "hidden") {
		t.Error("Debug entries should be filtered at info level")
	}
	if strings.Contains(info, "stalled") {
		t.Error("Warnings should not go to info.log")
	}
	if w := readLog(t, dir, "warning.log"); !strings.Contains(w, "port 2 stalled") {
		t.Errorf("warning.log missing entry: %q", w)
	}
	if e := readLog(t, dir, "error.log"); !strings.Contains(e, "table broken") {
		t.Errorf("error.log missing entry: %q", e)
	}
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir, LogLevel: "debug"})

	l.Warning("something odd")
	l.CleanLogs("warning.log")

	if w := readLog(t, dir, "warning.log"); w != "" {
		t.Errorf("Expected empty warning.log, got %q", w)
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("ignored")
	l.CleanLogs("info.log")
}
