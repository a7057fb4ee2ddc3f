package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWithFormat(FormatJSON); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWithFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if err := Sync(); err != nil {
		t.Errorf("failed to sync logger: %v", err)
	}
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}
	namedLogger.Info(context.Background(), "test message")
}

func TestNewWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug).Named("recognizer").With(String("camera", "door-1"))

	l.Info(context.Background(), "attendance marked",
		Int64("identity_id", 7),
		Float64("confidence", 0.97),
		Bool("manual", false),
		Duration("cooldown", 5*time.Second),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "attendance marked" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	group, ok := entry["recognizer"].(map[string]any)
	if !ok {
		t.Fatalf("expected named group, got %v", entry)
	}
	if group["camera"] != "door-1" {
		t.Errorf("With field missing: %v", group)
	}
	if group["identity_id"] != float64(7) {
		t.Errorf("identity_id: %v", group["identity_id"])
	}
	if caller, _ := group["caller"].(string); !strings.Contains(caller, "logger_test.go") {
		t.Errorf("caller should point at the test, got %q", caller)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelWarn)
	l.Debug(context.Background(), "hidden")
	l.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
	l.Warn(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn entry, got %s", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	for _, lvl := range []string{"debug", "INFO", "warning", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q: %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	SetLevel(slog.LevelInfo)
}
