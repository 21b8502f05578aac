// Command locsim drives the localization offline: it runs synthetic
// scenarios, replays GameController captures, and manages the SQLite pose
// log.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fieldpose/internal/config"
	"github.com/banshee-data/fieldpose/internal/monitoring"
	"github.com/banshee-data/fieldpose/internal/storage/sqlite"
	"github.com/banshee-data/fieldpose/internal/timeutil"
	"github.com/banshee-data/fieldpose/internal/version"
)

var (
	// Global flags
	verbose    bool
	dbPath     string
	configPath string

	// clock paces real-time replay; tests swap in a MockClock.
	clock timeutil.Clock = timeutil.RealClock{}
)

var rootCmd = &cobra.Command{
	Use:   "locsim",
	Short: "Offline driver for the robot self-localization",
	Long: `locsim runs the multi-hypothesis localization outside the robot.

Scenarios move a simulated robot through referee phases and score the
estimate against ground truth. Captured GameController traffic can be
replayed to check how the hypothesis set reacts to real referee decisions.
Every processed cycle can be logged to SQLite and rendered afterwards.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		monitoring.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.Version = version.String()
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log per-cycle resets, merges and prunes")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite pose log (created if missing)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Localization tuning JSON (defaults if empty)")

	rootCmd.AddCommand(runCmd, replayCmd, captureCmd, migrateCmd, runsCmd)
}

// loadTuning returns the tuning file named by --config, or the built-in
// defaults.
func loadTuning() (*config.TuningConfig, error) {
	if configPath == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(configPath)
}

// openStore opens the pose log named by --db; nil without the flag.
func openStore() (*sqlite.Store, error) {
	if dbPath == "" {
		return nil, nil
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pose log: %w", err)
	}
	return store, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
