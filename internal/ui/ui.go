// Package ui renders notesync output for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/status"
)

// Printer renders styled output for one writer.
type Printer struct {
	out io.Writer
	r   *lipgloss.Renderer

	title   lipgloss.Style
	muted   lipgloss.Style
	match   lipgloss.Style
	errText lipgloss.Style
	badges  map[status.Status]lipgloss.Style
}

// New returns a printer whose color profile is detected from w.
func New(w io.Writer) *Printer {
	return newPrinter(w, lipgloss.NewRenderer(w))
}

// NewPlain returns a printer that never emits escape sequences.
func NewPlain(w io.Writer) *Printer {
	return newPrinter(w, lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii)))
}

func newPrinter(w io.Writer, r *lipgloss.Renderer) *Printer {
	badge := func(color string) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}

	return &Printer{
		out:     w,
		r:       r,
		title:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		match:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		errText: r.NewStyle().Foreground(lipgloss.Color("1")),
		badges: map[status.Status]lipgloss.Style{
			status.Synced:  badge("2"),
			status.Pending: badge("3"),
			status.Syncing: badge("4"),
			status.Error:   badge("1"),
			status.Cleared: badge("8"),
		},
	}
}

// Printf writes formatted text.
func (p *Printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

// Badge renders a sync status.
func (p *Printer) Badge(s status.Status) string {
	style, ok := p.badges[s]
	if !ok {
		style = p.muted
	}
	return style.Render("● " + s.String())
}

// Muted renders secondary text.
func (p *Printer) Muted(s string) string {
	return p.muted.Render(s)
}

// ErrorText renders an error message.
func (p *Printer) ErrorText(s string) string {
	return p.errText.Render(s)
}

// NoteLine renders one note as "#id  title  (updated 3 minutes ago)".
func (p *Printer) NoteLine(n note.Note, now time.Time) string {
	return fmt.Sprintf("%s  %s  %s",
		p.muted.Render(fmt.Sprintf("#%d", n.ID)),
		p.title.Render(DisplayTitle(n)),
		p.muted.Render("(updated "+Ago(n.UpdatedAt, now)+")"))
}

// NoteList renders notes one per line.
func (p *Printer) NoteList(notes []note.Note, now time.Time) string {
	if len(notes) == 0 {
		return p.muted.Render("no notes") + "\n"
	}

	var b strings.Builder
	for _, n := range notes {
		b.WriteString(p.NoteLine(n, now))
		b.WriteByte('\n')
	}
	return b.String()
}

// SearchResults renders matches best rank first, with the store's <b>
// markers turned into highlighting.
func (p *Printer) SearchResults(res *note.SearchResult) string {
	if res == nil || len(res.Notes) == 0 {
		return p.muted.Render("no matches") + "\n"
	}

	notes := append([]note.Note(nil), res.Notes...)
	sort.SliceStable(notes, func(i, j int) bool {
		return res.Highlights[notes[i].ID].Rank < res.Highlights[notes[j].ID].Rank
	})

	var b strings.Builder
	for _, n := range notes {
		h, ok := res.Highlights[n.ID]
		title := DisplayTitle(n)
		if ok && h.TitleHighlight != "" {
			title = p.highlight(h.TitleHighlight)
		}

		fmt.Fprintf(&b, "%s  %s\n", p.muted.Render(fmt.Sprintf("#%d", n.ID)), p.title.Render(title))
		if ok && h.ContentHighlight != "" {
			fmt.Fprintf(&b, "    %s\n", p.highlight(h.ContentHighlight))
		}
	}
	return b.String()
}

func (p *Printer) highlight(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "<b>")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "</b>")
		if end < 0 {
			break
		}
		end += start

		b.WriteString(s[:start])
		b.WriteString(p.match.Render(s[start+len("<b>") : end]))
		s = s[end+len("</b>"):]
	}
	b.WriteString(s)
	return b.String()
}

// DisplayTitle returns the note title, or a placeholder for untitled notes.
func DisplayTitle(n note.Note) string {
	if strings.TrimSpace(n.Title) == "" {
		return "Untitled"
	}
	return n.Title
}

// Ago formats t relative to now, e.g. "3 seconds ago". The zero time is
// "never".
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
