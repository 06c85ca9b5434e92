package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/remote"
	"github.com/notesync/notesync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "notes",
	Short:   "List notes",
	Long: `List notes on the server, most recently updated first.

Example usage:
  notesync list
  notesync list --since yesterday
  notesync list --since 2h`,
	Run: func(cmd *cobra.Command, args []string) {
		since, _ := cmd.Flags().GetString("since")

		ctx, cancel := signalContext()
		defer cancel()

		_, svc := newService()
		notes, err := svc.LoadNotes(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		now := time.Now()
		if since != "" {
			t, err := parseSince(since, now)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			notes = updatedSince(notes, t)
		}

		fmt.Print(printer().NoteList(notes, now))
	},
}

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "notes",
	Short:   "Full-text search across titles and content",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		_, svc := newService()
		res, err := svc.Search(ctx, strings.Join(args, " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(printer().SearchResults(res))
	},
}

var newCmd = &cobra.Command{
	Use:     "new [title]",
	GroupID: "notes",
	Short:   "Create a note",
	Long: `Create a note with the given title. Without a title, notesync asks for one
when running in a terminal and otherwise creates an untitled note.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title := ""
		if len(args) == 1 {
			title = args[0]
		} else if ui.IsInteractive() {
			err := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Title").
					Placeholder("Untitled").
					CharLimit(500).
					Value(&title),
			)).Run()
			if errors.Is(err, huh.ErrUserAborted) {
				return
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		_, svc := newService()
		n, err := svc.CreateNote(ctx, title)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Created note #%d %s\n", n.ID, ui.DisplayTitle(n))
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	GroupID: "notes",
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signalContext()
		defer cancel()

		_, svc := newService()
		if err := svc.DeleteNote(ctx, note.Note{ID: id}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Deleted note #%d\n", id)
	},
}

func init() {
	listCmd.Flags().String("since", "", `Only notes updated since this time ("yesterday", "2h", RFC 3339)`)

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(deleteCmd)
}

func parseID(s string) (note.ID, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return note.NoID, fmt.Errorf("invalid note id %q", s)
	}
	return note.ID(id), nil
}

// pickNote asks the user to choose one of the notes in svc's list.
func pickNote(ctx context.Context, svc *remote.Service) (note.ID, error) {
	notes := svc.List().All()
	if len(notes) == 0 {
		return note.NoID, fmt.Errorf("no notes yet; create one with 'notesync new'")
	}

	now := time.Now()
	options := make([]huh.Option[note.ID], 0, len(notes))
	for _, n := range notes {
		label := fmt.Sprintf("%s  (updated %s)", ui.DisplayTitle(n), ui.Ago(n.UpdatedAt, now))
		options = append(options, huh.NewOption(label, n.ID))
	}

	var id note.ID
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[note.ID]().
			Title("Open which note?").
			Options(options...).
			Value(&id),
	)).RunWithContext(ctx)
	if err != nil {
		return note.NoID, err
	}
	return id, nil
}
