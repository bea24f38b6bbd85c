// Package security holds the gateway audit trail.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gpimon/internal/domain"
	"gpimon/internal/infra/tracer"
)

// FileAuditLogger implements domain.AuditLogger by writing JSONL to a file.
// When MaxSize is set the file is rotated to path+".1" once it grows past it,
// replacing any previous rotation.
type FileAuditLogger struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// NewFileAuditLogger creates an audit logger that appends to path. The file
// is created with 0600 permissions if it does not exist. maxSize 0 disables
// rotation.
func NewFileAuditLogger(path string, maxSize int64) (*FileAuditLogger, error) {
	f, size, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &FileAuditLogger{file: f, path: path, size: size, maxSize: maxSize}, nil
}

func openAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, 0, fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat audit log: %w", err)
	}
	return f, info.Size(), nil
}

// Log writes an audit event as a single JSON line and mirrors it as an
// event on the active span.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxSize > 0 && a.size > 0 && a.size+int64(len(data)) > a.maxSize {
		if err := a.rotate(); err != nil {
			return err
		}
	}
	n, err := a.file.Write(data)
	a.size += int64(n)
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, len(event.Detail)+2)
		attrs = append(attrs, tracer.StringAttr("audit.actor", event.Actor), tracer.StringAttr("audit.outcome", event.Outcome))
		for k, v := range event.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
	}
	return nil
}

// rotate must be called with a.mu held.
func (a *FileAuditLogger) rotate() error {
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close for rotation: %w", err)
	}
	if err := os.Rename(a.path, a.path+".1"); err != nil && !os.IsNotExist(err) {
		// Keep appending to the old file rather than losing events.
		a.file, a.size, _ = openAppend(a.path)
		return fmt.Errorf("rotate audit log: %w", err)
	}
	f, size, err := openAppend(a.path)
	if err != nil {
		return err
	}
	a.file, a.size = f, size
	return nil
}

// Close closes the audit log file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
