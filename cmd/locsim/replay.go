package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/gamecontroller"
	"github.com/banshee-data/fieldpose/internal/localization/debug"
	"github.com/banshee-data/fieldpose/internal/localization/knowledge"
	"github.com/banshee-data/fieldpose/internal/percept"
	"github.com/banshee-data/fieldpose/internal/storage/sqlite"
)

var (
	replayTeam     uint8
	replayPlayer   int
	replayPort     int
	replaySpawnX   float64
	replayRealtime bool
)

var replayCmd = &cobra.Command{
	Use:   "replay-gc <capture.pcap>",
	Short: "Replay captured GameController traffic through the localization",
	Long: `Reads GameController broadcasts from a pcap capture and feeds the
referee state seen by one robot into the localization, one cycle per
configured cycle period. The robot stands still and sees no landmarks, so
the output shows how referee decisions re-seed the hypothesis set.

Example:
  locsim replay-gc match.pcap --team 12 --player 3`,
	Args: cobra.ExactArgs(1),
	RunE: replayCapture,
}

func init() {
	replayCmd.Flags().Uint8Var(&replayTeam, "team", 0, "Own team number as sent by the GameController")
	replayCmd.Flags().IntVar(&replayPlayer, "player", 1, "Own player number (1-based)")
	replayCmd.Flags().IntVar(&replayPort, "port", gamecontroller.BroadcastPort, "UDP port of the GameController broadcast")
	replayCmd.Flags().Float64Var(&replaySpawnX, "spawn-x", -3.0, "Sideline entry x coordinate of the player")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Pace the replay at the cycle period")
	_ = replayCmd.MarkFlagRequired("team")
}

// refereeChanged ignores the countdown so that only decisions are reported.
func refereeChanged(a, b gamecontroller.State) bool {
	a.SecondaryTime, b.SecondaryTime = 0, 0
	return a != b
}

func describeState(s gamecontroller.State) string {
	parts := []string{s.GameState.String()}
	if s.GamePhase != gamecontroller.PhaseNormal {
		parts = append(parts, s.GamePhase.String())
	}
	if s.Penalized() {
		parts = append(parts, "penalty="+s.Penalty.String())
	}
	if s.KickingTeam {
		parts = append(parts, "kicking")
	}
	if s.SetPlay != gamecontroller.SetPlayNone {
		parts = append(parts, fmt.Sprintf("set-play=%d", s.SetPlay))
	}
	return strings.Join(parts, " ")
}

// replayMotion is what a standing robot reports while serving a penalty.
func replayMotion(s gamecontroller.State) percept.Motion {
	if s.Penalized() {
		return percept.Motion{Type: percept.MotionPenalized}
	}
	return percept.Motion{Type: percept.MotionStand}
}

func replayCapture(cmd *cobra.Command, args []string) error {
	packets, err := gamecontroller.ReadCaptureFile(args[0], replayPort)
	if err != nil {
		return err
	}
	if len(packets) == 0 {
		return fmt.Errorf("no GameController packets on port %d in %s", replayPort, args[0])
	}

	tuning, err := loadTuning()
	if err != nil {
		return err
	}
	fi, err := field.New(field.DefaultDimensions(), replayPlayer)
	if err != nil {
		return err
	}
	player := percept.Player{Number: replayPlayer, SidelineSpawnX: replaySpawnX}
	k, err := knowledge.New(fi, player, tuning.ToKnowledgeConfig(), nil)
	if err != nil {
		return err
	}
	collector := debug.NewDebugCollector()
	collector.SetEnabled(true)
	k.DebugCollector = collector

	store, err := openStore()
	if err != nil {
		return err
	}
	runID := ""
	if store != nil {
		defer store.Close()
		run := &sqlite.Run{Name: "replay " + args[0], Player: replayPlayer}
		if err := store.CreateRun(run); err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		runID = run.RunID
	}

	tl := gamecontroller.NewTimeline(packets)
	period := tuning.GetCyclePeriod()
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	var prev gamecontroller.State
	var pos knowledge.RobotPosition
	cycle := uint64(0)
	for ts := tl.Start(); !ts.After(tl.End()); ts = ts.Add(period) {
		if err := ctx.Err(); err != nil {
			return err
		}
		state, err := tl.At(ts).StateFor(replayTeam, replayPlayer)
		if errors.Is(err, gamecontroller.ErrTeamNotFound) {
			return fmt.Errorf("team %d does not play in this capture: %w", replayTeam, err)
		}
		if err != nil {
			return err
		}
		cycle++

		collector.BeginFrame(cycle)
		pos = k.Update(percept.Frame{
			Timestamp: ts,
			Game:      state,
			Body:      percept.BodyPose{FootContact: true},
			Motion:    replayMotion(state),
		})
		frame := collector.Emit()

		if cycle == 1 || refereeChanged(prev, state) || len(frame.Resets) > 0 {
			printReplayCycle(out, ts.Sub(tl.Start()), state, pos, frame)
		}
		prev = state

		if store != nil {
			if err := store.RecordCycle(runID, cycle, ts, pos, k.Hypotheses(), nil); err != nil {
				return fmt.Errorf("record cycle %d: %w", cycle, err)
			}
		}
		if replayRealtime {
			clock.Sleep(period)
		}
	}

	fmt.Fprintf(out, "replayed %d packets in %d cycles; final %d hypotheses at (%.2f, %.2f, %.2f)\n",
		tl.Len(), cycle, pos.HypothesisCount, pos.Pose.X, pos.Pose.Y, pos.Pose.Rotation)
	if runID != "" {
		fmt.Fprintf(out, "run id: %s\n", runID)
	}
	return nil
}

func printReplayCycle(w io.Writer, offset time.Duration, s gamecontroller.State, pos knowledge.RobotPosition, frame *debug.DebugFrame) {
	fmt.Fprintf(w, "%10s  %-32s %2d hypotheses", offset.Truncate(time.Millisecond), describeState(s), pos.HypothesisCount)
	if frame != nil {
		for _, r := range frame.Resets {
			fmt.Fprintf(w, "  [reset: %s]", r.Reason)
		}
	}
	fmt.Fprintln(w)
}
