package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/server"
	"github.com/notesync/notesync/internal/store"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "setup",
	Short:   "Run the note server",
	Long: `Run the HTTP note server backed by a SQLite database.

Endpoints:
  GET  /notes             List notes, most recently updated first
  GET  /notes/{id}        Get one note
  GET  /search?query=...  Full-text search with highlights
  POST /notes/create      Create a note, returns its id
  POST /notes/update      Update a note, returns its id
  POST /notes/delete      Delete a note, returns true or false
  GET  /health            Liveness check

Example usage:
  notesync serve                      # Listen on :8080 with ./notesync.db
  notesync serve --addr :9000 --db /var/lib/notesync/notes.db`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		dbPath, _ := cmd.Flags().GetString("db")
		if addr == "" {
			addr = cfg.Server.Addr
		}
		if dbPath == "" {
			dbPath = cfg.Server.DB
		}

		database, err := store.Open(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		database.SetLogger(logger)
		defer database.Close()

		initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
		err = database.InitSchema(initCtx)
		cancelInit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		srv, err := server.New(database, &server.Config{Addr: addr, Logger: logger})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start server: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Note server listening on http://%s\n", srv.GetAddr())
		fmt.Printf("Database: %s\n", database.Path())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signalContext()
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down note server...")
		if err := srv.Stop(); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Note server stopped")
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Address to listen on (default: server.addr from config)")
	serveCmd.Flags().String("db", "", "SQLite database path (default: server.db from config)")

	rootCmd.AddCommand(serveCmd)
}
