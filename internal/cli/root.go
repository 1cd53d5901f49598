// Package cli implements the memdex command line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/localmem/memdex/internal/config"
	"github.com/localmem/memdex/internal/embedding"
	"github.com/localmem/memdex/internal/store"
)

var (
	flagConfig  string
	flagDB      string
	flagVerbose bool
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "memdex",
	Short: "Local-first semantic memory index",
	Long: `memdex indexes memory artifacts into a single SQLite file and retrieves
them with hybrid full-text + vector search, trigger-phrase matching, and
named checkpoints. Embeddings come from a local Ollama instance by default;
without a provider the index degrades to full-text search.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.memdex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore loads configuration and opens the index. A misconfigured or
// absent embedding provider is not fatal; the store degrades.
func openStore() (*store.Store, *config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}

	logger := newLogger()
	slog.SetDefault(logger)

	emb := embedding.NewFromConfig(cfg.Embedder)
	st, err := store.Open(cfg, emb, logger)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
