package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/notesync/notesync/internal/dashboard"
	"github.com/notesync/notesync/internal/ui"
)

func TestFormatMessage(t *testing.T) {
	p := ui.NewPlain(&bytes.Buffer{})
	at := time.Date(2026, 5, 14, 9, 30, 0, 0, time.Local)

	encode := func(v interface{}) json.RawMessage {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}
		return data
	}

	tests := []struct {
		name string
		msg  dashboard.Message
		want string
	}{
		{
			name: "status update",
			msg: dashboard.Message{Type: dashboard.MessageTypeStatusUpdate, Timestamp: at,
				Data: encode(dashboard.StatusUpdateData{From: "pending", To: "syncing", NoteID: 3})},
			want: "09:30:00  ● syncing  #3",
		},
		{
			name: "confirmed",
			msg: dashboard.Message{Type: dashboard.MessageTypeNoteConfirmed, Timestamp: at,
				Data: encode(dashboard.NoteConfirmedData{NoteID: 3, Title: "Plan", Length: 12})},
			want: `09:30:00  confirmed #3 "Plan" (12 bytes)`,
		},
		{
			name: "sync error",
			msg: dashboard.Message{Type: dashboard.MessageTypeSyncError, Timestamp: at,
				Data: encode(dashboard.SyncErrorData{NoteID: 3, Error: "Failed to update note"})},
			want: "09:30:00  sync failed #3: Failed to update note",
		},
		{
			name: "unknown type",
			msg:  dashboard.Message{Type: "custom", Timestamp: at, Data: json.RawMessage(`{"x":1}`)},
			want: `09:30:00  custom {"x":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatMessage(p, tt.msg); got != tt.want {
				t.Errorf("formatMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandTree(t *testing.T) {
	want := []string{"serve", "edit", "list", "search", "new", "delete", "status", "dashboard", "config", "export", "import", "loadtest"}

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	all := strings.Join(names, " ")

	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered (have %s)", name, all)
		}
	}

	if cmd, _, err := rootCmd.Find([]string{"config", "init"}); err != nil || cmd.Name() != "init" {
		t.Errorf("config init not registered")
	}
}
