package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/debug"
	"github.com/banshee-data/fieldpose/internal/localization/knowledge"
	"github.com/banshee-data/fieldpose/internal/sim"
	"github.com/banshee-data/fieldpose/internal/storage/sqlite"
	"github.com/banshee-data/fieldpose/internal/visualiser"
)

var (
	pngPath  string
	htmlPath string
	runName  string
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a simulated scenario and score the estimate against ground truth",
	Long: `Runs the localization against a YAML scenario. The simulated robot
follows the scenario phases; landmark percepts and odometry are synthesised
with the scenario's noise and seed, so runs are reproducible.

Example:
  locsim run scenarios/sideline_walk.yaml --png walk.png --html walk.html`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func init() {
	runCmd.Flags().StringVar(&pngPath, "png", "", "Write a top-down field plot of the run")
	runCmd.Flags().StringVar(&htmlPath, "html", "", "Write an interactive trajectory page of the run")
	runCmd.Flags().StringVar(&runName, "name", "", "Run name in the pose log (defaults to the scenario name)")
}

// trace keeps the log of a run in memory for rendering and forwards every
// cycle to the pose log when one is open.
type trace struct {
	poses []sqlite.PoseRow
	last  []sqlite.HypothesisRow
	next  sim.Recorder
}

func (t *trace) RecordCycle(runID string, cycle uint64, ts time.Time, pos knowledge.RobotPosition,
	hyps []knowledge.HypothesisState, truth *geom.Pose2D) error {
	t.poses = append(t.poses, sqlite.NewPoseRow(cycle, ts, pos, truth))
	t.last = t.last[:0]
	for _, h := range hyps {
		t.last = append(t.last, sqlite.NewHypothesisRow(cycle, h))
	}
	if t.next == nil {
		return nil
	}
	return t.next.RecordCycle(runID, cycle, ts, pos, hyps, truth)
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := sim.LoadScenario(args[0])
	if err != nil {
		return err
	}
	tuning, err := loadTuning()
	if err != nil {
		return err
	}
	runner, err := sim.NewRunner(sc, tuning.ToKnowledgeConfig())
	if err != nil {
		return err
	}

	name := runName
	if name == "" {
		name = sc.Name
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}

	tr := &trace{}
	runner.Recorder = tr
	runner.Debug = debug.NewDebugCollector()
	runner.Debug.SetEnabled(true)

	store, err := openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		cfgJSON, err := json.Marshal(tuning)
		if err != nil {
			return fmt.Errorf("failed to encode tuning: %w", err)
		}
		run := &sqlite.Run{Name: name, Player: sc.Player.Number, ConfigJSON: string(cfgJSON)}
		if err := store.CreateRun(run); err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		runner.RunID = run.RunID
		tr.next = store
	}

	res, err := runner.Run(commandContext(cmd))
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), name, runner.RunID, res)

	if pngPath != "" {
		fp := visualiser.FieldPlot{Field: runner.Field, Title: name, Poses: tr.poses, Hypotheses: tr.last}
		if err := fp.SavePNG(pngPath); err != nil {
			return err
		}
	}
	if htmlPath != "" {
		if err := writeTrajectoryPage(htmlPath, visualiser.TrajectoryPage{Field: runner.Field, Title: name, Poses: tr.poses}); err != nil {
			return err
		}
	}
	return nil
}

func writeTrajectoryPage(path string, page visualiser.TrajectoryPage) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResult(w io.Writer, name, runID string, res sim.Result) {
	fmt.Fprintf(w, "scenario %s: %d cycles, %d valid\n", name, res.Cycles, res.ValidCycles)
	if runID != "" {
		fmt.Fprintf(w, "  run id:         %s\n", runID)
	}
	fmt.Fprintf(w, "  truth:          (%.3f, %.3f, %.3f)\n", res.Truth.X, res.Truth.Y, res.Truth.Rotation)
	fmt.Fprintf(w, "  estimate:       (%.3f, %.3f, %.3f)\n", res.Estimate.X, res.Estimate.Y, res.Estimate.Rotation)
	fmt.Fprintf(w, "  final error:    %.3f m, %.3f rad\n", res.FinalError, res.FinalHeading)
	fmt.Fprintf(w, "  max valid err:  %.3f m\n", res.MaxValidError)
	fmt.Fprintf(w, "  hypotheses:     %d (valid=%t)\n", res.Final.HypothesisCount, res.Final.Valid)
	fmt.Fprintf(w, "  resets/merges/prunes: %d/%d/%d\n", res.Resets, res.Merges, res.Prunes)
}

// commandContext returns the command's context, or Background when the
// command was invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
