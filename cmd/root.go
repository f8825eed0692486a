// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Vehicle flags
	configPath    string
	daemonAddress string
	simulate      bool
	verbose       bool

	// Remote channel flags (monitor)
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Quadcopter flight controller",
	Long: `Kestrel - A quadcopter flight controller driving ESCs, an inertial sensor
and a rangefinder through the pigpio daemon.

Vehicle commands (fly, rev, ping, range) talk to the daemon:
  Daemon:    --daemon host:port (default from --config, else [::1]:8888)
  Simulated: --simulate (in-memory daemon with a level IMU and sonar)

The monitor command is a ground station for a vehicle running 'fly':
  --url ws://vehicle:8080/control [--username user]

For remote channel authentication, the password is read from the
KESTREL_PASSWORD environment variable, or prompted interactively if not set.
The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Vehicle configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&daemonAddress, "daemon", "d", "", "pigpio daemon address (host:port)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use an in-memory daemon instead of hardware")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Vehicle remote channel URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
