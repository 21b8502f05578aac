package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/storage/sqlite"
	"github.com/banshee-data/fieldpose/internal/visualiser"
)

var (
	runsDelete string
	runsRender string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List, render or delete logged runs",
	Long: `Lists the runs in the pose log named by --db. With --render RUN_ID
the run is drawn to --png and/or --html; with --delete RUN_ID it is
removed together with its pose and hypothesis log.`,
	Args: cobra.NoArgs,
	RunE: listRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsDelete, "delete", "", "Delete the run with this ID")
	runsCmd.Flags().StringVar(&runsRender, "render", "", "Render the run with this ID")
	runsCmd.Flags().StringVar(&pngPath, "png", "", "Field plot output for --render")
	runsCmd.Flags().StringVar(&htmlPath, "html", "", "Trajectory page output for --render")
}

func listRuns(cmd *cobra.Command, args []string) error {
	if dbPath == "" {
		return errors.New("--db is required")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("pose log %s: %w", dbPath, err)
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	out := cmd.OutOrStdout()

	if runsDelete != "" {
		if err := store.DeleteRun(runsDelete); err != nil {
			return fmt.Errorf("failed to delete run %s: %w", runsDelete, err)
		}
		fmt.Fprintf(out, "deleted run %s\n", runsDelete)
		return nil
	}
	if runsRender != "" {
		return renderRun(store, runsRender)
	}

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %s  player %d  %s\n", r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Player, r.Name)
	}
	return nil
}

func renderRun(store *sqlite.Store, runID string) error {
	if pngPath == "" && htmlPath == "" {
		return errors.New("--render needs --png or --html")
	}
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	var run *sqlite.Run
	for i := range runs {
		if runs[i].RunID == runID {
			run = &runs[i]
		}
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	poses, err := store.Poses(runID)
	if err != nil {
		return err
	}
	if len(poses) == 0 {
		return fmt.Errorf("run %s has no logged cycles", runID)
	}
	hyps, err := store.Hypotheses(runID, poses[len(poses)-1].Cycle)
	if err != nil {
		return err
	}
	fi, err := field.New(field.DefaultDimensions(), run.Player)
	if err != nil {
		return err
	}

	if pngPath != "" {
		fp := visualiser.FieldPlot{Field: fi, Title: run.Name, Poses: poses, Hypotheses: hyps}
		if err := fp.SavePNG(pngPath); err != nil {
			return err
		}
	}
	if htmlPath != "" {
		return writeTrajectoryPage(htmlPath, visualiser.TrajectoryPage{Field: fi, Title: run.Name, Poses: poses})
	}
	return nil
}
