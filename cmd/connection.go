// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/kestrel/pkg/config"
	"github.com/Thermoquad/kestrel/pkg/pigpio"
	"github.com/Thermoquad/kestrel/pkg/remote"
	"github.com/Thermoquad/kestrel/pkg/sensors/imu"
	"github.com/Thermoquad/kestrel/pkg/sensors/sonar"
)

// simulatedAltitude is what the simulated sonar reports, in centimeters
const simulatedAltitude = 4.0

// newLogger returns the structured logger for vehicle commands
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config (or the defaults) and applies flag overrides
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if daemonAddress != "" {
		cfg.Daemon.Address = daemonAddress
	}
	return cfg, cfg.Validate()
}

// Daemon is an open daemon connection plus what the commands need to
// report on it
type Daemon struct {
	Commander pigpio.Commander
	Pi        *pigpio.Pi
	Stats     *pigpio.Statistics
	Sim       *pigpio.Sim // nil unless --simulate
	Info      string
	closer    io.Closer
}

// Close releases the daemon connection
func (d *Daemon) Close() error {
	return d.closer.Close()
}

// OpenDaemon connects to the daemon, or to an in-memory one with --simulate.
// The simulated daemon is reached through the same wire protocol client.
func OpenDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	var (
		client *pigpio.Client
		sim    *pigpio.Sim
		info   string
	)
	if simulate {
		sim = pigpio.NewSim()
		imu.Simulate(sim, cfg.IMU)
		sonar.Simulate(sim, cfg.Sonar.GPIO, func() float64 { return simulatedAltitude })
		local, peer := net.Pipe()
		go sim.Serve(peer)
		client = pigpio.NewClient(local)
		info = "simulated daemon"
	} else {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Daemon.DialTimeout)
		defer cancel()
		var err error
		if client, err = pigpio.Dial(dialCtx, cfg.Daemon.Address); err != nil {
			return nil, err
		}
		info = fmt.Sprintf("pigpio daemon: %s", cfg.Daemon.Address)
	}

	var commander pigpio.Commander = client
	if cfg.Daemon.LogExchanges {
		commander = pigpio.NewLoggedCommander(client, logger.With("component", "pigpio"), slog.LevelDebug)
	}
	return &Daemon{
		Commander: commander,
		Pi:        pigpio.NewPi(commander),
		Stats:     client.Statistics(),
		Sim:       sim,
		Info:      info,
		closer:    client,
	}, nil
}

// OpenRange opens the configured range sensor. The returned closer is a
// no-op for the GPIO backend.
func OpenRange(cfg config.Config, d *Daemon) (sonar.Sensor, func() error, error) {
	switch cfg.Sonar.Backend {
	case config.SonarSerial:
		if simulate {
			return nil, nil, fmt.Errorf("--simulate only supports the %s sonar backend", config.SonarGPIO)
		}
		s, err := sonar.OpenSerial(cfg.Sonar.Serial)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		g, err := sonar.NewGPIO(d.Pi, cfg.Sonar.GPIO)
		if err != nil {
			return nil, nil, err
		}
		return g, func() error { return nil }, nil
	}
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("KESTREL_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// DialVehicle connects to a vehicle's remote channel using the --url flags
func DialVehicle(ctx context.Context) (*remote.Client, string, error) {
	if wsURL == "" {
		return nil, "", fmt.Errorf("--url must be specified")
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %v", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, "", fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	opts := remote.DialOptions{
		Username:           wsUsername,
		InsecureSkipVerify: wsNoSSLVerify && u.Scheme == "wss",
	}
	if wsUsername != "" {
		if opts.Password, err = GetPassword(); err != nil {
			return nil, "", err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	client, err := remote.Dial(dialCtx, wsURL, opts)
	if err != nil {
		return nil, "", err
	}
	return client, fmt.Sprintf("WebSocket: %s", wsURL), nil
}
