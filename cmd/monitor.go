// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/kestrel/pkg/remote"
)

var monitorStep float64

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Ground station TUI for a flying vehicle",
	Long: `Connect to a vehicle's remote channel, show its telemetry and send events.

Keys:
  t          takeoff
  l          land
  arrows     tele-operate (each press moves the roll/pitch command by --step)
  c          center the tele-operation command
  k          kill (stops the motors, the vehicle exits)
  s          shutdown (orderly, the vehicle exits)
  q          quit the monitor (the vehicle keeps its state)

Requires --url pointing at the vehicle, e.g. ws://kestrel.local:8080/control`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Float64Var(&monitorStep, "step", 2, "Degrees per arrow key press")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	client, connInfo, err := DialVehicle(context.Background())
	if err != nil {
		return err
	}
	defer client.Close()

	m := initialMonitorModel(client, connInfo, monitorStep)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go readVehicle(client, p)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// readVehicle forwards everything the vehicle sends to the TUI until the
// connection drops
func readVehicle(client *remote.Client, p *tea.Program) {
	for {
		msg, err := client.Next()
		if err != nil {
			p.Send(connectionLostMsg{err: err})
			return
		}
		switch {
		case msg.Snapshot != nil:
			p.Send(snapshotMsg(*msg.Snapshot))
		case msg.Reply != nil:
			p.Send(replyMsg(*msg.Reply))
		}
	}
}
