package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_ConsoleLevel(t *testing.T) {
	var buf bytes.Buffer

	logger, flush, err := New(&Config{Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("quiet")
	logger.Warn("loud", zap.Int64("note_id", 7))
	flush()

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info entry written at warn level: %q", out)
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, "note_id") {
		t.Errorf("warn entry missing: %q", out)
	}
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer

	logger, flush, err := New(&Config{Level: "info", JSON: true, Console: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Named("engine").Info("sync completed", zap.Int64("note_id", 3))
	flush()

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("console output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "sync completed" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["logger"] != "engine" {
		t.Errorf("logger = %v, want engine", entry["logger"])
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notesync.log")

	logger, flush, err := New(&Config{Level: "debug", File: path, Console: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Debug("first")
	logger.Error("second")
	flush()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	defer f.Close()

	var messages []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		messages = append(messages, entry["message"].(string))
	}

	if len(messages) != 2 || messages[0] != "first" || messages[1] != "second" {
		t.Errorf("file messages = %q, want [first second]", messages)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := New(&Config{Level: "loudest"}); err == nil {
		t.Error("New() expected error for invalid level")
	}
}
