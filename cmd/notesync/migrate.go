package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/migrate"
)

var exportCmd = &cobra.Command{
	Use:     "export <file.jsonl>",
	GroupID: "notes",
	Short:   "Export every note to a JSONL file",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		backup, _ := cmd.Flags().GetBool("backup")

		ctx, cancel := signalContext()
		defer cancel()

		client, _ := newService()
		result, err := migrate.Export(ctx, client, args[0], backup)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if result.BackupCreated != "" {
			fmt.Printf("Backup: %s\n", result.BackupCreated)
		}
		fmt.Printf("Exported %d notes to %s\n", result.NotesWritten, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "notes",
	Short:   "Create notes from a JSONL file",
	Long: `Create one new note per line of a JSONL export. The server assigns new ids,
so importing the same file twice creates duplicates.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx, cancel := signalContext()
		defer cancel()

		client, _ := newService()
		result, err := migrate.Import(ctx, client, migrate.ImportOptions{
			FromJSONL: args[0],
			DryRun:    dryRun,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if dryRun {
			fmt.Printf("Would import %d notes\n", result.NotesRead)
			return
		}

		fmt.Printf("Imported %d of %d notes\n", result.NotesCreated, result.NotesRead)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
		if len(result.Errors) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	exportCmd.Flags().Bool("backup", true, "Keep an existing file as a timestamped backup")
	importCmd.Flags().Bool("dry-run", false, "Parse the file without creating notes")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
