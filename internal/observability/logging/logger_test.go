package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudloader/cloudinstaller/internal/observability"
)

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, line)
	}
	return entry
}

func TestJSONLLogger_EventFields(t *testing.T) {
	var buf bytes.Buffer
	logger := &jsonlLogger{writer: &buf}

	ctx := observability.WithOpID(context.Background())
	logger.Event(ctx, "install.complete", map[string]any{
		"duration_ms": 123,
		"result":      "success",
	})

	entry := decodeLine(t, buf.String())
	for _, field := range []string{"ts", "level", "event", "component", "op_id", "schema_version"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
	if entry["event"] != "cloudinstaller.install.complete" {
		t.Errorf("event = %v", entry["event"])
	}
	if entry["op_id"] != observability.OpID(ctx) {
		t.Errorf("op_id = %v, want %v", entry["op_id"], observability.OpID(ctx))
	}
	if entry["schema_version"] != SchemaVersion {
		t.Errorf("schema_version = %v", entry["schema_version"])
	}

	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatal("fields is not a map")
	}
	if fields["duration_ms"] != float64(123) { // JSON numbers are float64
		t.Errorf("duration_ms = %v, want 123", fields["duration_ms"])
	}
}

func TestJSONLLogger_KeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	logger := &jsonlLogger{writer: &buf}

	logger.Info("libraries", "downloaded", "name", "com.example:lib:2.0", 42, "dropped", "size")

	entry := decodeLine(t, buf.String())
	fields := entry["fields"].(map[string]any)
	if fields["name"] != "com.example:lib:2.0" {
		t.Errorf("name = %v", fields["name"])
	}
	if len(fields) != 1 {
		t.Errorf("non-string keys and dangling keys should be dropped: %v", fields)
	}
	if entry["component"] != "libraries" || entry["msg"] != "downloaded" {
		t.Errorf("entry = %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		minLevel string
		method   func(Logger)
		want     bool
	}{
		{LevelInfo, func(l Logger) { l.Debug("c", "m") }, false},
		{LevelInfo, func(l Logger) { l.Info("c", "m") }, true},
		{LevelWarn, func(l Logger) { l.Info("c", "m") }, false},
		{LevelError, func(l Logger) { l.Warn("c", "m") }, false},
		{LevelDebug, func(l Logger) { l.Debug("c", "m") }, true},
	}

	for _, tt := range tests {
		var jbuf, pbuf bytes.Buffer
		tt.method(&jsonlLogger{writer: &jbuf, minLevel: levelPriority(tt.minLevel)})
		tt.method(&prettyLogger{writer: &pbuf, minLevel: levelPriority(tt.minLevel)})

		if got := jbuf.Len() > 0; got != tt.want {
			t.Errorf("jsonl minLevel=%s: got output=%v, want %v", tt.minLevel, got, tt.want)
		}
		if got := pbuf.Len() > 0; got != tt.want {
			t.Errorf("pretty minLevel=%s: got output=%v, want %v", tt.minLevel, got, tt.want)
		}
	}
}

func TestPrettyLogger_Line(t *testing.T) {
	var buf bytes.Buffer
	logger := &prettyLogger{writer: &buf}

	logger.Warn("processor", "output mismatch", "path", "/srv/out.txt", "expected", "abc")

	line := buf.String()
	if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", line)
	}
	for _, want := range []string{"WARN", "processor: output mismatch", "expected=abc", "path=/srv/out.txt"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	// keys are sorted
	if strings.Index(line, "expected=") > strings.Index(line, "path=") {
		t.Errorf("fields not sorted: %q", line)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	tests := []struct {
		format  string
		check   func(Logger) bool
		wantErr bool
	}{
		{format: FormatPretty, check: func(l Logger) bool { _, ok := l.(*prettyLogger); return ok }},
		{format: "", check: func(l Logger) bool { _, ok := l.(*prettyLogger); return ok }},
		{format: FormatJSONL, check: func(l Logger) bool { _, ok := l.(*jsonlLogger); return ok }},
		{format: FormatNone, check: func(l Logger) bool { _, ok := l.(*noopLogger); return ok }},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		logger, err := NewLogger(Config{Format: tt.format})
		if (err != nil) != tt.wantErr {
			t.Errorf("NewLogger(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if !tt.check(logger) {
			t.Errorf("NewLogger(%q) returned %T", tt.format, logger)
		}
		_ = logger.Close()
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "install.log")

	logger, err := NewLogger(Config{Format: FormatJSONL, Output: logFile})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	ctx := observability.WithOpID(context.Background())
	logger.Event(ctx, "install.start", nil)
	logger.Event(ctx, "install.complete", nil)
	logger.Close()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		decodeLine(t, line)
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	logger := From(ctx)
	if logger == nil {
		t.Fatal("From should never return nil")
	}
	// must not panic
	logger.Info("test", "msg")
	logger.Event(ctx, "test.event", nil)

	original := &jsonlLogger{writer: &bytes.Buffer{}}
	if From(WithLogger(ctx, original)) != original {
		t.Error("From should return the logger stored in context")
	}
}
