// Package main provides the taskflow CLI entrypoint.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/taskflow-agent/internal/config"
	"github.com/MimeLyc/taskflow-agent/internal/persistence"
	"github.com/MimeLyc/taskflow-agent/pkg/log"
)

var (
	version = "0.1.0"
	dataDir string
	asJSON  bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Todo service with a tool-calling assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding the database (overrides DATA_DIR)")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cmd.AddCommand(
		serveCmd(),
		toolsCmd(),
		agentCmd(),
		userCmd(),
	)
	return cmd
}

func loadConfig(opts ...config.Option) (*config.Config, error) {
	opts = append([]config.Option{config.WithDataDir(dataDir)}, opts...)
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))
	return cfg, nil
}

func openStore(cfg *config.Config) (*persistence.SQLiteStore, error) {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
