package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_ConsoleWritesMessages(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Debug("attempt failed")
	_ = log.Sync()

	if !strings.Contains(buf.String(), "attempt failed") {
		t.Errorf("expected message in console output, got %q", buf.String())
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("hidden")
	log.Warn("shown")
	_ = log.Sync()

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNew_FileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "linkrot.log")
	log, err := New(Options{File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("test_message_from_logging_test")

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
