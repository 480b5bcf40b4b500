package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestComponentKeepsOutput(t *testing.T) {
	var buf bytes.Buffer
	root := New(&Config{Level: "debug", Output: &buf})

	root.Component("query").Info("fetched", "key", "abc")

	out := buf.String()
	if !strings.Contains(out, "query") {
		t.Errorf("output %q missing component prefix", out)
	}
	if !strings.Contains(out, "fetched") {
		t.Errorf("output %q missing message", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelInherited(t *testing.T) {
	var buf bytes.Buffer
	root := New(&Config{Level: "warn", Output: &buf})

	root.Component("balance").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	root := New(&Config{Level: "info", Format: "json", Output: &buf})

	root.Component("rpc").Info("listening", "addr", "127.0.0.1:8780")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output %q is not JSON: %v", buf.String(), err)
	}
	if line["msg"] != "listening" || line["addr"] != "127.0.0.1:8780" {
		t.Errorf("line = %v", line)
	}
}
