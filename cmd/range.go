// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/kestrel/pkg/sensors/sonar"
)

var (
	rangeInterval    time.Duration
	rangeMaxTimeouts int
)

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Print rangefinder readings",
	Long: `Read the configured rangefinder continuously and print each distance.

Timeouts (no echo or no frame within the window) are printed and counted;
the command gives up after --max-timeouts consecutive timeouts.

Exit codes:
  0 - Interrupted with Ctrl+C
  1 - Too many consecutive timeouts or a sensor fault
  2 - Connection error`,
	RunE: runRange,
}

func init() {
	rootCmd.AddCommand(rangeCmd)
	rangeCmd.Flags().DurationVar(&rangeInterval, "interval", 100*time.Millisecond, "Delay between readings")
	rangeCmd.Flags().IntVar(&rangeMaxTimeouts, "max-timeouts", 10, "Consecutive timeouts before giving up")
}

func runRange(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := OpenDaemon(ctx, cfg, newLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer d.Close()

	rng, closeRange, err := OpenRange(cfg, d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sensor error: %v\n", err)
		os.Exit(2)
	}
	defer closeRange()

	fmt.Printf("Kestrel - Rangefinder\n")
	fmt.Printf("Connection: %s\n", d.Info)
	fmt.Printf("Backend: %s\n", cfg.Sonar.Backend)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ticker := time.NewTicker(rangeInterval)
	defer ticker.Stop()

	var readings, timeouts, consecutive int
	var minCm, maxCm float64
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n--- Range statistics ---\n")
			fmt.Printf("%d readings, %d timeouts", readings, timeouts)
			if readings > 0 {
				fmt.Printf(", min %.1f cm, max %.1f cm", minCm, maxCm)
			}
			fmt.Printf("\n")
			return nil
		case <-ticker.C:
		}

		timestamp := time.Now().Format("15:04:05.000")
		cm, err := rng.Measure()
		switch {
		case errors.Is(err, sonar.ErrTimeout):
			timeouts++
			consecutive++
			fmt.Printf("[%s] TIMEOUT\n", timestamp)
			if consecutive >= rangeMaxTimeouts {
				fmt.Fprintf(os.Stderr, "Giving up after %d consecutive timeouts\n", consecutive)
				os.Exit(1)
			}
		case err != nil:
			return err
		default:
			if readings == 0 || cm < minCm {
				minCm = cm
			}
			if readings == 0 || cm > maxCm {
				maxCm = cm
			}
			readings++
			consecutive = 0
			fmt.Printf("[%s] %7.1f cm\n", timestamp, cm)
		}
	}
}
