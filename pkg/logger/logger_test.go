package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLineIsJSONWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel(DEBUG)
	defer SetLevel(INFO)

	InfoCF("syncer", "Run finished", map[string]any{"rows_written": 2})

	var entry logEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry.Level != "INFO" || entry.Component != "syncer" || entry.Message != "Run finished" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if got := entry.Fields["rows_written"]; got != float64(2) {
		t.Fatalf("rows_written = %v, want 2", got)
	}
}

func TestLevelFiltersLowerSeverity(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel(WARN)
	defer SetLevel(INFO)

	InfoC("x", "hidden")
	DebugC("x", "hidden")
	WarnC("x", "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("lower levels leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" WARN ":  WARN,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileLoggingMirrorsLines(t *testing.T) {
	SetOutput(nil)
	defer SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "ordersync.log")
	if err := EnableFileLogging(FileOptions{Path: path}); err != nil {
		t.Fatalf("EnableFileLogging: %v", err)
	}
	ErrorCF("gateway", "Run failed", map[string]any{"error": "boom"})
	DisableFileLogging()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"Run failed"`) {
		t.Fatalf("file log missing line: %s", data)
	}
}

func TestEnableFileLoggingRequiresPath(t *testing.T) {
	if err := EnableFileLogging(FileOptions{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
