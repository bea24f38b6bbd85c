package security

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"gpimon/internal/domain"
)

func readEvents(t *testing.T, path string) []domain.AuditEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var events []domain.AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev domain.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("Unmarshal %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestFileAuditLogger_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := NewFileAuditLogger(path, 0)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	event := domain.AuditEvent{
		Type:    domain.AuditOutputWrite,
		Actor:   "panel",
		Action:  "write",
		Outcome: "queued",
		Detail:  map[string]string{"value": "0x0faf"},
	}
	if err := logger.Log(context.Background(), event); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := readEvents(t, path)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	got := events[0]
	if got.Type != domain.AuditOutputWrite || got.Actor != "panel" || got.Outcome != "queued" {
		t.Errorf("event = %+v", got)
	}
	if got.Detail["value"] != "0x0faf" {
		t.Errorf("Detail = %v", got.Detail)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}

func TestFileAuditLogger_KeepsExplicitTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path, 0)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := logger.Log(context.Background(), domain.AuditEvent{Timestamp: ts, Type: domain.AuditAccessDenied}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	logger.Close()

	if got := readEvents(t, path)[0].Timestamp; !got.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got, ts)
	}
}

func TestFileAuditLogger_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	for i := 0; i < 2; i++ {
		logger, err := NewFileAuditLogger(path, 0)
		if err != nil {
			t.Fatalf("NewFileAuditLogger: %v", err)
		}
		if err := logger.Log(context.Background(), domain.AuditEvent{Type: domain.AuditOutputWrite}); err != nil {
			t.Fatalf("Log: %v", err)
		}
		logger.Close()
	}
	if n := len(readEvents(t, path)); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
}

func TestFileAuditLogger_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path, 0)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(context.Background(), domain.AuditEvent{Type: domain.AuditOutputWrite, Actor: "c"})
		}()
	}
	wg.Wait()
	logger.Close()

	if n := len(readEvents(t, path)); n != 20 {
		t.Errorf("events = %d, want 20", n)
	}
}

func TestFileAuditLogger_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path, 300)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 10; i++ {
		ev := domain.AuditEvent{Type: domain.AuditOutputWrite, Actor: "panel", Detail: map[string]string{"value": strings.Repeat("f", 16)}}
		if err := logger.Log(context.Background(), ev); err != nil {
			t.Fatalf("Log %d: %v", i, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() > 300 {
		t.Errorf("live file is %d bytes, want <= 300", info.Size())
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("rotated file missing: %v", err)
	}
	total := len(readEvents(t, path)) + len(readEvents(t, path+".1"))
	if total == 0 || total > 10 {
		t.Errorf("events across files = %d", total)
	}
}

func TestNewFileAuditLoggerInvalidPath(t *testing.T) {
	if _, err := NewFileAuditLogger("/nonexistent/dir/audit.jsonl", 0); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestFileAuditLogger_WriteAfterClose(t *testing.T) {
	logger, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"), 0)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	logger.Close()

	if err := logger.Log(context.Background(), domain.AuditEvent{Type: domain.AuditOutputWrite}); err == nil {
		t.Fatal("expected error writing to closed logger")
	}
}

func TestFileAuditLogger_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path, 0)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	defer logger.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestFileAuditLogger_SpanEvent(t *testing.T) {
	logger, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"), 0)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	defer logger.Close()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "gateway.write")
	if err := logger.Log(ctx, domain.AuditEvent{
		Type:    domain.AuditOutputWrite,
		Actor:   "panel",
		Outcome: "queued",
		Detail:  map[string]string{"value": "0x1"},
	}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d", len(ended))
	}
	events := ended[0].Events()
	if len(events) != 1 || events[0].Name != "audit.output_write" {
		t.Errorf("span events = %+v", events)
	}
}
