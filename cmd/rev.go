// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/kestrel/pkg/flight"
	"github.com/Thermoquad/kestrel/pkg/sensors/imu"
)

var revConfirm bool

var revCmd = &cobra.Command{
	Use:   "rev",
	Short: "Bench test: run the motor spin-up sequence",
	Long: `Arm the motors, run the REV spin-up sequence once and stop.

The vehicle never leaves the ground: the sequence ends where a flight would
start climbing. Use it to check ESC calibration and motor direction.

REMOVE THE PROPELLERS FIRST. The command refuses to run without --props-off.`,
	RunE: runRev,
}

func init() {
	rootCmd.AddCommand(revCmd)
	revCmd.Flags().BoolVar(&revConfirm, "props-off", false, "Confirm the propellers are removed")
}

func runRev(cmd *cobra.Command, args []string) error {
	if !revConfirm && !simulate {
		return fmt.Errorf("refusing to spin motors without --props-off")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := OpenDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	v, err := flight.New(flight.Parts{
		Daemon: d.Commander,
		Stats:  d.Stats,
		IMU:    imu.NewBNO055(d.Pi, cfg.IMU),
	}, cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Kestrel - Spin-up Test\n")
	fmt.Printf("Connection: %s\n", d.Info)
	fmt.Printf("Sequence: %d steps\n", len(cfg.Motion.RevSequence))
	for i, step := range cfg.Motion.RevSequence {
		fmt.Printf("  %d: %5.1f%% for %s\n", i+1, step.Thrust, step.Duration)
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	if err := v.RunRev(ctx); err != nil {
		return err
	}
	fmt.Printf("Sequence complete, motors stopped\n")
	return nil
}
