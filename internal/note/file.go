package note

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileExt is the extension of note files in a workspace directory.
const FileExt = ".md"

const frontMatterDelim = "---"

// Filename returns the canonical workspace filename for this note: {id}.md
func (n *Note) Filename() string {
	return fmt.Sprintf("%d%s", n.ID, FileExt)
}

// IDFromFilename extracts the note id from a workspace filename such as "12.md".
func IDFromFilename(name string) (ID, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, FileExt) {
		return NoID, false
	}
	v, err := strconv.ParseInt(strings.TrimSuffix(base, FileExt), 10, 64)
	if err != nil || v <= 0 {
		return NoID, false
	}
	return ID(v), true
}

// Marshal renders the note as YAML front matter followed by the content.
func Marshal(n *Note) ([]byte, error) {
	meta, err := yaml.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal front matter for note %d: %w", n.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(meta)
	buf.WriteString(frontMatterDelim + "\n")
	buf.WriteString(n.Content)
	return buf.Bytes(), nil
}

// Unmarshal parses a note file. Files without front matter are accepted and
// treated as content only; the caller supplies the id from the filename.
func Unmarshal(data []byte) (*Note, error) {
	var n Note
	text := string(data)

	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		n.Content = text
		return &n, nil
	}

	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter")
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &n); err != nil {
		return nil, fmt.Errorf("failed to parse front matter: %w", err)
	}
	n.Content = rest[end+len(frontMatterDelim)+2:]
	return &n, nil
}

// ReadNoteFile reads and parses a note file from the given path.
// A missing id in the front matter is filled in from the filename.
func ReadNoteFile(path string) (*Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read note file %s: %w", path, err)
	}

	n, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse note file %s: %w", path, err)
	}

	if n.ID == 0 {
		if id, ok := IDFromFilename(path); ok {
			n.ID = id
		}
	}

	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid note file %s: %w", path, err)
	}

	return n, nil
}

// WriteNoteFile writes a note to dir/{id}.md.
func WriteNoteFile(dir string, n *Note) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid note: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	data, err := Marshal(n)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, n.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write note file %s: %w", path, err)
	}

	return nil
}

// ReadAllNoteFiles reads every note file in dir. Invalid files are skipped
// and reported in the returned skipped slice.
func ReadAllNoteFiles(dir string) (notes []*Note, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Note{}, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read workspace directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}

		n, err := ReadNoteFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			skipped = append(skipped, entry.Name())
			continue
		}
		notes = append(notes, n)
	}

	return notes, skipped, nil
}
