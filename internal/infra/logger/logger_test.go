package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gpimon/internal/infra/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpimon.log")
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("gpi monitor started", "worker", "01ABC")
	log.Debug("filtered out")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"gpi monitor started"`) {
		t.Errorf("missing message: %s", out)
	}
	if !strings.Contains(out, `"service":"gpimon"`) {
		t.Errorf("missing service attribute: %s", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Errorf("debug record written at info level: %s", out)
	}
}

func TestNewTextDebugAddsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpimon.log")
	log, closer, err := New(config.LoggerConfig{Level: "debug", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("gpi input accepted", "value", "0x01")
	closer()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "source=") {
		t.Errorf("expected source attribute at debug level: %s", data)
	}
}

func TestNewStdStreams(t *testing.T) {
	for _, out := range []string{"stdout", "stderr", ""} {
		_, closer, err := New(config.LoggerConfig{Output: out})
		if err != nil {
			t.Fatalf("New(%q): %v", out, err)
		}
		if err := closer(); err != nil {
			t.Errorf("closer(%q): %v", out, err)
		}
	}
}

func TestNewBadPath(t *testing.T) {
	_, _, err := New(config.LoggerConfig{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestUnderJournal(t *testing.T) {
	t.Setenv("JOURNAL_STREAM", "8:12345")
	if !underJournal("stderr") || !underJournal("") {
		t.Error("stderr under journal not detected")
	}
	if underJournal(filepath.Join(t.TempDir(), "gpimon.log")) {
		t.Error("file output treated as journal")
	}

	t.Setenv("JOURNAL_STREAM", "")
	if underJournal("stdout") {
		t.Error("journal detected without JOURNAL_STREAM")
	}
}

func TestDropTime(t *testing.T) {
	if a := dropTime(nil, slog.String(slog.TimeKey, "x")); !a.Equal(slog.Attr{}) {
		t.Errorf("top-level time kept: %v", a)
	}
	if a := dropTime([]string{"req"}, slog.String(slog.TimeKey, "x")); a.Key != slog.TimeKey {
		t.Errorf("grouped time attr dropped: %v", a)
	}
	if a := dropTime(nil, slog.Int("value", 3)); a.Key != "value" {
		t.Errorf("unrelated attr changed: %v", a)
	}
}
