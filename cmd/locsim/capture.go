package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fieldpose/internal/gamecontroller"
	"github.com/banshee-data/fieldpose/internal/sim"
)

var (
	captureTeam uint8
	capturePort int
)

var captureCmd = &cobra.Command{
	Use:   "capture <scenario.yaml> <out.pcap>",
	Short: "Write a scenario's referee phases as a GameController capture",
	Long: `Renders the referee state of every scenario phase as GameController
broadcasts and writes them to a pcap file that replay-gc and other capture
tools can read.`,
	Args: cobra.ExactArgs(2),
	RunE: writeScenarioCapture,
}

func init() {
	captureCmd.Flags().Uint8Var(&captureTeam, "team", 1, "Team number to put into the packets")
	captureCmd.Flags().IntVar(&capturePort, "port", gamecontroller.BroadcastPort, "UDP port of the broadcast")
}

func writeScenarioCapture(cmd *cobra.Command, args []string) error {
	sc, err := sim.LoadScenario(args[0])
	if err != nil {
		return err
	}
	packets, err := sc.RefereePackets(captureTeam)
	if err != nil {
		return err
	}
	if err := gamecontroller.WriteCaptureFile(args[1], packets, capturePort); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d packets to %s\n", len(packets), args[1])
	return nil
}
