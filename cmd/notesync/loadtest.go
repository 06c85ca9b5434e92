package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/loadtest"
	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/remote"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "sync",
	Short:   "Simulate many concurrent editing sessions",
	Long: `Simulate concurrent typists, each with its own sync engine, and report how
keystrokes coalesce into writes and how long writes take.

By default the run uses a throwaway SQLite database. With --remote it creates
its notes on the configured server instead (they are left in place).

Example usage:
  notesync loadtest
  notesync loadtest --typists 50 --keys 100 --interval 20ms --debounce 300ms
  notesync loadtest --remote`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := loadtest.DefaultOptions()
		opts.Typists, _ = cmd.Flags().GetInt("typists")
		opts.Keystrokes, _ = cmd.Flags().GetInt("keys")
		opts.Interval, _ = cmd.Flags().GetDuration("interval")
		opts.Debounce, _ = cmd.Flags().GetDuration("debounce")
		opts.Logger = logger
		useRemote, _ := cmd.Flags().GetBool("remote")

		ctx, cancel := signalContext()
		defer cancel()

		var (
			target remote.Syncer
			notes  []note.Note
		)

		if useRemote {
			client, _ := newService()
			created, err := loadtest.CreateNotes(ctx, client, opts.Typists)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			target, notes = client, created
			fmt.Printf("Target: %s\n", cfg.Remote.URL)
		} else {
			dir, err := os.MkdirTemp("", "notesync-loadtest-")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer os.RemoveAll(dir)

			ts, err := loadtest.CreateTestStore(ctx, filepath.Join(dir, "load.db"), opts.Typists)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer ts.Close()
			target, notes = ts.DB, ts.Notes
			fmt.Printf("Target: %s\n", ts.DB.Path())
		}

		fmt.Printf("Running %d typists, %d keystrokes each...\n\n", opts.Typists, opts.Keystrokes)

		report, err := loadtest.Run(ctx, target, notes, opts)
		if report != nil {
			report.Print(os.Stdout)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if report != nil && report.Lost > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	defaults := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("typists", defaults.Typists, "Concurrent editing sessions")
	loadtestCmd.Flags().Int("keys", defaults.Keystrokes, "Keystrokes per typist")
	loadtestCmd.Flags().Duration("interval", defaults.Interval, "Pause between keystrokes")
	loadtestCmd.Flags().Duration("debounce", defaults.Debounce, "Sync debounce of each engine")
	loadtestCmd.Flags().Bool("remote", false, "Run against the configured server")

	rootCmd.AddCommand(loadtestCmd)
}
