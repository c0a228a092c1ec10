package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
		{"writer overrides output", Config{Level: InfoLevel, Format: TextFormat, Writer: &bytes.Buffer{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDerivedLoggersKeepFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: DebugLevel, Format: JSONFormat, Writer: &buf, DisableTimestamp: true})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	log.WithComponent("engine").WithField("run_id", "abc").Info("matched")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "engine" || entry["run_id"] != "abc" {
		t.Errorf("expected component and run_id fields, got %v", entry)
	}
	if entry["msg"] != "matched" {
		t.Errorf("unexpected message %v", entry["msg"])
	}
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: InfoLevel, Format: TextFormat, Writer: &buf, DisableTimestamp: true})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	tracker := NewProgressTracker(ProgressConfig{Operation: "scoring", Total: 4, Logger: log, LogInterval: time.Hour})
	tracker.Increment()
	tracker.Increment()

	if tracker.Current() != 2 {
		t.Errorf("expected 2 processed, got %d", tracker.Current())
	}
	if tracker.Percentage() != 50 {
		t.Errorf("expected 50%%, got %.1f", tracker.Percentage())
	}
	if strings.Contains(buf.String(), "Progress update") {
		t.Error("did not expect a progress line before the interval elapsed")
	}
}
