package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/observability"
)

// defaultLogFile is truncated at the start of every run.
const defaultLogFile = "lastrun.log"

var (
	cfg     *config.Config
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "lits",
	Short: "Find known people in a photo library",
	Long: `lits extracts face encodings from photos, stores them, and links faces to
known people learned from one reference photo per person.

Known people are read from a directory of single-face photos named after the
person (for example "Ada Lovelace.jpg"). Matched names are written back to the
photos as XMP keywords.`,
	SilenceUsage:       true,
	PersistentPreRunE:  initConfig,
	PersistentPostRunE: closeLog,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides database.path)")
	rootCmd.PersistentFlags().Float64("tolerance", 0, "Maximum face distance that counts as a match")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(mustGetString(cmd, "config"))
	if err != nil {
		return err
	}

	if db := mustGetString(cmd, "db"); db != "" {
		loaded.Database.Driver = config.DriverSQLite
		loaded.Database.Path = db
	}
	if cmd.Flags().Changed("tolerance") {
		loaded.Matching.Tolerance = mustGetFloat64(cmd, "tolerance")
		if err := loaded.Validate(); err != nil {
			return err
		}
	}
	cfg = loaded

	path := cfg.Logging.File
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	observability.SetupLoggerTo(f, cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

func closeLog(*cobra.Command, []string) error {
	if logFile == nil {
		return nil
	}
	return logFile.Close()
}
