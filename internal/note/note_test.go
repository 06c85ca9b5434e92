package note

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNote_Validate(t *testing.T) {
	tests := []struct {
		name    string
		note    Note
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid note",
			note: Note{ID: 1, Title: "Groceries", Content: "milk"},
		},
		{
			name: "empty title and content",
			note: Note{ID: 7},
		},
		{
			name:    "missing id",
			note:    Note{Title: "x"},
			wantErr: true,
			errMsg:  "id must be positive",
		},
		{
			name:    "sentinel id",
			note:    Note{ID: NoID},
			wantErr: true,
			errMsg:  "id must be positive",
		},
		{
			name:    "title too long",
			note:    Note{ID: 1, Title: strings.Repeat("a", 501)},
			wantErr: true,
			errMsg:  "500 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.note.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want it to wrap ErrInvalid", err)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestIDFromFilename(t *testing.T) {
	tests := []struct {
		name   string
		want   ID
		wantOK bool
	}{
		{"12.md", 12, true},
		{"/tmp/notes/3.md", 3, true},
		{"12.json", NoID, false},
		{"abc.md", NoID, false},
		{"0.md", NoID, false},
		{"-4.md", NoID, false},
	}

	for _, tt := range tests {
		got, ok := IDFromFilename(tt.name)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("IDFromFilename(%q) = (%d, %v), want (%d, %v)", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestWriteReadNoteFile(t *testing.T) {
	dir := t.TempDir()
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	n := &Note{ID: 42, Title: "Meeting", Content: "line one\n---\nline three\n", UpdatedAt: updated}
	if err := WriteNoteFile(dir, n); err != nil {
		t.Fatalf("WriteNoteFile() failed: %v", err)
	}

	got, err := ReadNoteFile(filepath.Join(dir, "42.md"))
	if err != nil {
		t.Fatalf("ReadNoteFile() failed: %v", err)
	}

	if got.ID != n.ID || got.Title != n.Title || got.Content != n.Content {
		t.Errorf("ReadNoteFile() = %+v, want %+v", got, n)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, updated)
	}
}

func TestReadNoteFile_NoFrontMatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "9.md")
	if err := os.WriteFile(path, []byte("just text"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadNoteFile(path)
	if err != nil {
		t.Fatalf("ReadNoteFile() failed: %v", err)
	}
	if got.ID != 9 {
		t.Errorf("ID = %d, want 9 (from filename)", got.ID)
	}
	if got.Content != "just text" {
		t.Errorf("Content = %q, want %q", got.Content, "just text")
	}
}

func TestUnmarshal_Unterminated(t *testing.T) {
	if _, err := Unmarshal([]byte("---\nid: 1\nno end")); err == nil {
		t.Fatal("Unmarshal() expected error for unterminated front matter")
	}
}

func TestReadAllNoteFiles(t *testing.T) {
	dir := t.TempDir()

	for _, n := range []*Note{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}} {
		if err := WriteNoteFile(dir, n); err != nil {
			t.Fatalf("WriteNoteFile() failed: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.md"), []byte("---\nid: [\n---\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	notes, skipped, err := ReadAllNoteFiles(dir)
	if err != nil {
		t.Fatalf("ReadAllNoteFiles() failed: %v", err)
	}
	if len(notes) != 2 {
		t.Errorf("len(notes) = %d, want 2", len(notes))
	}
	if len(skipped) != 1 || skipped[0] != "broken.md" {
		t.Errorf("skipped = %v, want [broken.md]", skipped)
	}
}

func TestReadAllNoteFiles_MissingDir(t *testing.T) {
	notes, _, err := ReadAllNoteFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ReadAllNoteFiles() failed: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("len(notes) = %d, want 0", len(notes))
	}
}
