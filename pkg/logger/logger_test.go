package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWriterLoggerWritesObject(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	l.Info("tool dispatched", map[string]any{"tool": "get_current_weather"})

	line := buf.String()
	if !strings.Contains(line, "INFO") || !strings.Contains(line, "tool dispatched") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, `obj={"tool":"get_current_weather"}`) {
		t.Fatalf("expected JSON object in line: %q", line)
	}
}

func TestDebugRespectsEnabledFlag(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	Debug(false, l, "hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output when disabled, got %q", buf.String())
	}
	Debugf(true, l, "round %d", 2)
	if !strings.Contains(buf.String(), "DEBUG round 2") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	Debug(true, nil, "nil logger is ignored", nil)
}

func TestJSONLoggerFlattensMaps(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf)
	l.Warn("retrying", map[string]any{"attempt": 2})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec["msg"] != "retrying" || rec["level"] != "WARN" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["attempt"] != float64(2) {
		t.Fatalf("expected flattened attempt attribute, got %v", rec["attempt"])
	}
}
