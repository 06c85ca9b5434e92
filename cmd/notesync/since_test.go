package main

import (
	"testing"
	"time"

	"github.com/notesync/notesync/internal/note"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 5, 14, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"duration", "90m", now.Add(-90 * time.Minute), false},
		{"rfc3339", "2026-05-01T08:00:00Z", time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), false},
		{"empty", "  ", time.Time{}, true},
		{"gibberish", "qwzx", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSince(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSince_Phrase(t *testing.T) {
	now := time.Date(2026, 5, 14, 15, 30, 0, 0, time.UTC)

	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) failed: %v", err)
	}
	if got.YearDay() != now.YearDay()-1 {
		t.Errorf("parseSince(yesterday) = %v, want a time on May 13", got)
	}
}

func TestUpdatedSince(t *testing.T) {
	base := time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC)
	notes := []note.Note{
		{ID: 3, UpdatedAt: base.Add(2 * time.Hour)},
		{ID: 2, UpdatedAt: base},
		{ID: 1, UpdatedAt: base.Add(-time.Hour)},
	}

	got := updatedSince(notes, base)
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 2 {
		t.Errorf("updatedSince() = %+v, want notes 3 and 2", got)
	}
}
