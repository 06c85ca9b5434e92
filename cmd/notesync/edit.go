package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/daemon"
	"github.com/notesync/notesync/internal/dashboard"
	"github.com/notesync/notesync/internal/engine"
	"github.com/notesync/notesync/internal/events"
	"github.com/notesync/notesync/internal/executor"
	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/status"
	"github.com/notesync/notesync/internal/ui"
)

var editCmd = &cobra.Command{
	Use:     "edit [id]",
	GroupID: "sync",
	Short:   "Edit notes in the workspace with background sync",
	Long: `Check out notes into the workspace directory and sync edits in the background.

Every note is written to <workspace>/<id>.md with YAML front matter holding its
title. Save the file in any editor: once saves pause for the debounce interval
the note is pushed to the server. Saving a different note's file switches the
session to it; the previous note gets a final sync first.

Without an id, notesync asks which note to start with when running in a
terminal.

The session also serves a live dashboard (see 'notesync dashboard') and, when
nats.url is configured, publishes sync events to NATS JetStream.

Example usage:
  notesync edit 12
  notesync edit --dir ~/notes --no-dashboard`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
		if dir == "" {
			dir = cfg.Workspace.Dir
		}

		ctx, cancel := signalContext()
		defer cancel()

		client, svc := newService()
		notes, err := svc.LoadNotes(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var id note.ID
		switch {
		case len(args) == 1:
			id, err = parseID(args[0])
		case ui.IsInteractive():
			id, err = pickNote(ctx, svc)
			if errors.Is(err, huh.ErrUserAborted) {
				return
			}
		default:
			err = fmt.Errorf("note id required when not running in a terminal")
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		current, err := client.GetByID(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := checkout(dir, notes, *current); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		exec, err := executor.New(client, &executor.Config{Timeout: cfg.Remote.Timeout, Logger: logger})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		exec.Start()

		engineConfig := cfg.EngineConfig()
		engineConfig.Logger = logger
		e, err := engine.New(exec, engineConfig)
		if err != nil {
			_ = exec.Stop()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := e.Initialize(*current, svc.Confirmed); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		p := printer()
		unsubscribe := e.Status().Subscribe(func(c status.Change) {
			if c.From == c.To || c.To == status.Cleared {
				return
			}
			p.Printf("%s  %s\n", p.Badge(c.To), p.Muted(fmt.Sprintf("#%d %s", e.ActiveID(), e.Buffer().Title)))
		})
		defer unsubscribe()

		stopExtras := startExtras(e, noDashboard)
		defer stopExtras()

		session, err := daemon.NewWithConfig(e, client.GetByID, dir, &daemon.Config{Logger: logger})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Editing %s in %s\n", ui.DisplayTitle(*current), filepath.Join(dir, current.Filename()))
		fmt.Printf("Debounce: %s, switch on failure: %s\n", engineConfig.Debounce, engineConfig.SwitchOnFailure)
		fmt.Println("\nPress Ctrl+C to stop...")

		if err := session.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		fmt.Println("\nFlushing pending edits...")
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
		err = e.Flush(flushCtx)
		cancelFlush()

		var unsynced *engine.UnsyncedEditsError
		if errors.As(err, &unsynced) {
			fmt.Fprintf(os.Stderr, "%s\n%s\n", p.ErrorText(unsynced.Error()), unsynced.Diff())
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		stats := e.Stats()
		if err := e.Teardown(); err != nil {
			logger.Warn("executor stop failed", zap.Error(err))
		}

		fmt.Printf("Session ended: %d synced, %d failed, last sync %s\n",
			stats.Completed, stats.Failed, ui.Ago(stats.LastConfirmed, time.Now()))
	},
}

func init() {
	editCmd.Flags().String("dir", "", "Workspace directory (default: workspace.dir from config)")
	editCmd.Flags().Bool("no-dashboard", false, "Do not serve the live dashboard")

	rootCmd.AddCommand(editCmd)
}

// checkout writes every note into dir, with current taking precedence over
// its possibly older list entry.
func checkout(dir string, notes []note.Note, current note.Note) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	for i := range notes {
		if notes[i].ID == current.ID {
			continue
		}
		if err := note.WriteNoteFile(dir, &notes[i]); err != nil {
			return err
		}
	}
	return note.WriteNoteFile(dir, &current)
}

// startExtras attaches the dashboard and the NATS forwarder to e when they
// are enabled. The returned func stops whatever was started.
func startExtras(e *engine.Engine, noDashboard bool) func() {
	var stops []func()

	if !noDashboard && cfg.Dashboard.Port > 0 {
		srv := dashboard.NewServer(&dashboard.Config{
			Host:   "127.0.0.1",
			Port:   cfg.Dashboard.Port,
			Logger: logger,
		})
		if err := srv.Start(); err != nil {
			logger.Warn("dashboard disabled", zap.Error(err))
		} else {
			detach, err := dashboard.NewHandler(srv, logger).Attach(e)
			if err != nil {
				logger.Warn("failed to attach dashboard", zap.Error(err))
				detach = func() {}
			}
			fmt.Printf("Dashboard: ws://%s/ws\n", srv.GetAddr())
			stops = append(stops, func() {
				detach()
				_ = srv.Stop()
			})
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			fwd := events.NewForwarder(pub, logger)
			remove, err := e.AddObserver(fwd)
			if err != nil {
				logger.Warn("failed to attach event forwarder", zap.Error(err))
				remove = func() {}
			}
			logger.Info("publishing sync events", zap.String("url", cfg.NATS.URL), zap.String("stream", events.StreamName))
			stops = append(stops, func() {
				remove()
				fwd.Stop()
				pub.Close()
			})
		}
	}

	return func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

// dashboardAddr is where the dashboard of a local edit session listens.
func dashboardAddr() string {
	return net.JoinHostPort("127.0.0.1", fmt.Sprint(cfg.Dashboard.Port))
}
