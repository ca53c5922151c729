package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init("debug", &buf)

	Info("joke approved", String("id", "01HX"), Int("total", 3), Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log line %q: %v", buf.String(), err)
	}

	if entry["message"] != "joke approved" {
		t.Errorf("message = %v, want joke approved", entry["message"])
	}
	if entry["id"] != "01HX" {
		t.Errorf("id = %v, want 01HX", entry["id"])
	}
	if entry["total"] != float64(3) {
		t.Errorf("total = %v, want 3", entry["total"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		logFunc func(string, ...Field)
		want    bool
	}{
		{"info", Debug, false},
		{"info", Info, true},
		{"warn", Info, false},
		{"warn", Error, true},
		{"error", Warn, false},
		{"DEBUG", Debug, true},
		{"bogus", Info, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			Init(tt.level, &buf)
			tt.logFunc("hello")

			got := strings.Contains(buf.String(), "hello")
			if got != tt.want {
				t.Errorf("logged = %v, want %v (output %q)", got, tt.want, buf.String())
			}
		})
	}
}
