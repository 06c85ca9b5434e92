package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage notesync configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Long: `Write a config file holding every setting at its default value.

Without a path the file goes to the XDG config directory, for example
~/.config/notesync/notesync.toml.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := config.DefaultPath()
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.WriteDefault(path, force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		source := cfg.File
		if source == "" {
			source = "(defaults and environment only)"
		}

		fmt.Printf("Config file:        %s\n\n", source)
		fmt.Printf("remote.url          %s\n", cfg.Remote.URL)
		fmt.Printf("remote.timeout      %s\n", cfg.Remote.Timeout)
		fmt.Printf("sync.debounce       %s\n", cfg.Sync.Debounce)
		fmt.Printf("sync.switch_on_failure %s\n", cfg.Sync.SwitchOnFailure)
		fmt.Printf("server.addr         %s\n", cfg.Server.Addr)
		fmt.Printf("server.db           %s\n", cfg.Server.DB)
		fmt.Printf("dashboard.port      %d\n", cfg.Dashboard.Port)
		fmt.Printf("log.level           %s\n", cfg.Log.Level)
		fmt.Printf("log.file            %s\n", cfg.Log.File)
		fmt.Printf("log.json            %v\n", cfg.Log.JSON)
		fmt.Printf("nats.url            %s\n", cfg.NATS.URL)
		fmt.Printf("workspace.dir       %s\n", cfg.Workspace.Dir)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
