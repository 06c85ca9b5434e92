// Command notesync edits notes locally and keeps them synced with a note
// server in the background.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/logging"
	"github.com/notesync/notesync/internal/remote"
	"github.com/notesync/notesync/internal/ui"
)

var (
	configPath string
	logLevel   string

	cfg      *config.Config
	logger   = zap.NewNop()
	flushLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "Edit notes locally with background sync",
	Long: `notesync keeps a local workspace of notes in sync with a note server.

Run 'notesync serve' to host the notes database, then 'notesync edit' to open
a note in the workspace. Saved edits are debounced and pushed to the server
in the background; switching notes waits for the previous note to finish
syncing.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded

		l, flush, err := logging.New(cfg.LoggingConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger, flushLog = l, flush

		if cfg.File != "" {
			logger.Debug("loaded config", zap.String("file", cfg.File))
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		flushLog()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "notes", Title: "Notes:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./notesync.toml, then the XDG config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newService returns a notes service talking to the configured server.
func newService() (*remote.Client, *remote.Service) {
	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.Remote.URL,
		Timeout: cfg.Remote.Timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return client, remote.NewService(client, remote.NewList())
}

func printer() *ui.Printer {
	return ui.New(os.Stdout)
}
