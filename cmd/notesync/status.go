package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/dashboard"
	"github.com/notesync/notesync/internal/status"
	"github.com/notesync/notesync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show the sync status of the running edit session",
	Long: `Show the sync status of the edit session running on this machine.

The status is read from the session's dashboard, so the session must not have
been started with --no-dashboard.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snap, err := dashboard.Snapshot(ctx, dashboardAddr())
		if err != nil {
			fmt.Fprintf(os.Stderr, "No edit session found: %v\n", err)
			fmt.Fprintf(os.Stderr, "Start one with 'notesync edit'\n")
			os.Exit(1)
		}

		p := printer()
		now := time.Now()

		fmt.Printf("\n%s  #%d %s\n\n", p.Badge(status.Status(snap.Status)), snap.NoteID, snap.Title)
		fmt.Printf("Unsynced edits: %v\n", snap.Dirty)
		fmt.Printf("Sync in flight: %v\n", snap.InFlight)
		fmt.Printf("Last sync:      %s\n", ui.Ago(snap.LastConfirmed, now))
		fmt.Printf("Syncs:          %d dispatched, %d completed, %d failed\n", snap.Dispatched, snap.Completed, snap.Failed)
		if snap.LastError != "" {
			fmt.Printf("Last error:     %s\n", p.ErrorText(snap.LastError))
		}
		fmt.Println()
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Follow the live sync feed of the running edit session",
	Long: `Follow the WebSocket feed of the local edit session.

WebSocket messages include:
- snapshot: Session state, sent once on connect
- status_update: Sync status transition (synced, pending, syncing, error)
- note_confirmed: The server confirmed a note
- sync_error: A sync round trip failed

Connect with any WebSocket client:
  ws://127.0.0.1:8090/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		p := printer()
		err := dashboard.Watch(ctx, dashboardAddr(), func(msg dashboard.Message) error {
			fmt.Println(formatMessage(p, msg))
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// formatMessage renders one dashboard message as a single line.
func formatMessage(p *ui.Printer, msg dashboard.Message) string {
	at := p.Muted(msg.Timestamp.Local().Format("15:04:05"))

	switch msg.Type {
	case dashboard.MessageTypeSnapshot:
		var d dashboard.SnapshotData
		if err := json.Unmarshal(msg.Data, &d); err == nil {
			return fmt.Sprintf("%s  %s  #%d %s", at, p.Badge(status.Status(d.Status)), d.NoteID, d.Title)
		}
	case dashboard.MessageTypeStatusUpdate:
		var d dashboard.StatusUpdateData
		if err := json.Unmarshal(msg.Data, &d); err == nil {
			return fmt.Sprintf("%s  %s  #%d", at, p.Badge(status.Status(d.To)), d.NoteID)
		}
	case dashboard.MessageTypeNoteConfirmed:
		var d dashboard.NoteConfirmedData
		if err := json.Unmarshal(msg.Data, &d); err == nil {
			return fmt.Sprintf("%s  confirmed #%d %q (%d bytes)", at, d.NoteID, d.Title, d.Length)
		}
	case dashboard.MessageTypeSyncError:
		var d dashboard.SyncErrorData
		if err := json.Unmarshal(msg.Data, &d); err == nil {
			return fmt.Sprintf("%s  %s #%d: %s", at, p.ErrorText("sync failed"), d.NoteID, d.Error)
		}
	}
	return fmt.Sprintf("%s  %s %s", at, msg.Type, string(msg.Data))
}
