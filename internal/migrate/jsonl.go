// Package migrate moves notes between a note store and JSONL files, one note
// per line, for backups and for seeding a new server.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/remote"
)

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	FromJSONL string // Input JSONL file path
	DryRun    bool   // Parse and count without writing
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	NotesRead    int
	NotesCreated int

	// IDs maps ids in the file to the ids the store assigned
	IDs    map[note.ID]note.ID
	Errors []string
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	NotesWritten  int
	BackupCreated string
}

// FromJSONL reads a JSONL file of notes. Blank lines are skipped.
func FromJSONL(path string) ([]note.Note, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	return ReadJSONL(file)
}

// ReadJSONL decodes notes from r, one JSON object per line.
func ReadJSONL(r io.Reader) ([]note.Note, error) {
	var notes []note.Note
	decoder := json.NewDecoder(bufio.NewReader(r))
	lineNum := 0

	for {
		var n note.Note
		if err := decoder.Decode(&n); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", lineNum+1, err)
		}
		lineNum++
		notes = append(notes, n)
	}

	return notes, nil
}

// WriteJSONL encodes notes to w, one JSON object per line.
func WriteJSONL(w io.Writer, notes []note.Note) error {
	encoder := json.NewEncoder(w)
	for i := range notes {
		if err := encoder.Encode(&notes[i]); err != nil {
			return fmt.Errorf("failed to encode note %d: %w", notes[i].ID, err)
		}
	}
	return nil
}

// Export writes every note in s to path. An existing file is kept as a
// timestamped backup when backup is set, and replaced atomically either way.
func Export(ctx context.Context, s remote.Store, path string, backup bool) (*ExportResult, error) {
	notes, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	result := &ExportResult{}

	if backup {
		if input, err := os.ReadFile(path); err == nil {
			backupPath := path + ".backup." + time.Now().Format("20060102-150405")
			if err := os.WriteFile(backupPath, input, 0600); err != nil {
				return nil, fmt.Errorf("failed to create backup: %w", err)
			}
			result.BackupCreated = backupPath
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := WriteJSONL(file, notes); err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	result.NotesWritten = len(notes)
	return result, nil
}

// Import creates every note in the file as a new note in s. Ids are assigned
// by the store; the mapping is reported in the result. A note that fails to
// import is recorded in Errors and the import continues.
func Import(ctx context.Context, s remote.Store, opts ImportOptions) (*ImportResult, error) {
	notes, err := FromJSONL(opts.FromJSONL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}

	result := &ImportResult{
		NotesRead: len(notes),
		IDs:       make(map[note.ID]note.ID),
	}
	if opts.DryRun {
		return result, nil
	}

	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		oldID := n.ID
		id, err := s.Create(ctx, note.Note{Title: n.Title, Content: n.Content})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to import note %d: %v", oldID, err))
			continue
		}
		result.IDs[oldID] = id
		result.NotesCreated++
	}

	return result, nil
}
