package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWriter_JSONByDefault(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer

	NewWriter(&buf).Info("chat answered", slog.String("user_id", "u1"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "chat answered" || rec["user_id"] != "u1" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestOpen_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_FORMAT", "text")

	log, closeFn, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	log.Info("index built", slog.Int("chunks", 3))
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "index built") || !strings.Contains(string(data), "chunks=3") {
		t.Errorf("log file content = %q", data)
	}
}

func TestFromContext_Default(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) != slog.Default() {
		t.Error("want slog.Default when no logger is stored")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if FromContext(WithLogger(context.Background(), l)) != l {
		t.Error("want stored logger")
	}
}
