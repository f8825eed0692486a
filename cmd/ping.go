// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the daemon connection with round-trip commands",
	Long: `Exchange PIGPV, HWVER and TICK with the pigpio daemon and report
round-trip times.

This is useful for verifying:
  - The daemon is reachable at the configured address
  - Responses echo their requests (no protocol faults)
  - Exchange latency is low enough for the control loop

Exit codes:
  0 - All pings successful
  1 - One or more pings failed
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 5, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 200*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := OpenDaemon(context.Background(), cfg, newLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer d.Close()

	fmt.Printf("Kestrel - Daemon Ping Test\n")
	fmt.Printf("Connection: %s\n", d.Info)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	failCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		version, err := d.Pi.Version()
		if err != nil {
			fmt.Printf("PIGPV FAILED: %v\n", err)
			failCount++
			continue
		}
		rev, err := d.Pi.HardwareRevision()
		if err != nil {
			fmt.Printf("HWVER FAILED: %v\n", err)
			failCount++
			continue
		}
		tick, err := d.Pi.Tick()
		if err != nil {
			fmt.Printf("TICK FAILED: %v\n", err)
			failCount++
			continue
		}
		rtt := time.Since(startTime) / 3

		fmt.Printf("version=%d hardware=0x%06x tick=%dus rtt=%v\n",
			version, rev, tick, rtt.Round(time.Microsecond))

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d failed, %.0f%% loss\n",
		pingCount, failCount, float64(failCount)/float64(pingCount)*100)
	fmt.Print(d.Stats.String())

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
