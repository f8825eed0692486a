// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/kestrel/pkg/broker"
	"github.com/Thermoquad/kestrel/pkg/config"
	"github.com/Thermoquad/kestrel/pkg/flight"
	"github.com/Thermoquad/kestrel/pkg/remote"
	"github.com/Thermoquad/kestrel/pkg/sensors/imu"
	"github.com/Thermoquad/kestrel/pkg/sensors/vision"
	"github.com/Thermoquad/kestrel/pkg/telemetry"
)

var flyListen string

var flyCmd = &cobra.Command{
	Use:   "fly",
	Short: "Run the flight controller",
	Long: `Arm the motors and run the control loop until shutdown.

The vehicle waits in IDLE for remote events on its websocket channel:
  takeoff   spin up (REV), climb to hover and hold over the vision target
  land      descend and return to IDLE
  move      tele-operate with explicit roll/pitch angles
  kill      stop the motors immediately and exit
  shutdown  return to IDLE and exit

Telemetry snapshots are pushed to every connected ground station and, when
an MQTT broker is configured, published on the telemetry topic. Vision
detections are read from the broker as well.

Exit codes:
  0 - Orderly shutdown (shutdown event or Ctrl+C)
  1 - Flight aborted (safety fault or kill)`,
	RunE: runFly,
}

func init() {
	rootCmd.AddCommand(flyCmd)
	flyCmd.Flags().StringVar(&flyListen, "listen", "", "Remote channel listen address (overrides config)")
}

func runFly(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flyListen != "" {
		cfg.Remote.Listen = flyListen
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := OpenDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	rng, closeRange, err := OpenRange(cfg, d)
	if err != nil {
		return err
	}
	defer closeRange()

	server := remote.NewServer(cfg.Remote, logger.With("component", "remote"))
	ln, err := net.Listen("tcp", cfg.Remote.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Remote.Listen, err)
	}

	parts := flight.Parts{
		Daemon: d.Commander,
		Stats:  d.Stats,
		IMU:    imu.NewBNO055(d.Pi, cfg.IMU),
		Range:  rng,
		Events: server.Events(),
		Sinks:  []telemetry.Sink{server},
	}

	if cfg.Broker.Enabled() {
		client, err := connectBroker(ctx, cfg, logger, &parts)
		if err != nil {
			ln.Close()
			return err
		}
		defer client.Disconnect(250)
	}

	v, err := flight.New(parts, cfg, logger)
	if err != nil {
		ln.Close()
		return err
	}

	serverCtx, cancelServer := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Serve(serverCtx, ln) }()
	defer func() {
		cancelServer()
		<-serverDone
	}()

	fmt.Printf("Kestrel - Flight Controller\n")
	fmt.Printf("Connection: %s\n", d.Info)
	fmt.Printf("Remote channel: %s%s\n", ln.Addr(), cfg.Remote.Path)
	fmt.Printf("Press Ctrl+C to stop the motors and exit\n\n")

	err = v.Run(ctx)
	fmt.Printf("\n--- Daemon statistics ---\n%s", d.Stats.String())
	return err
}

// connectBroker wires the vision feed and the MQTT telemetry publisher into
// parts
func connectBroker(ctx context.Context, cfg config.Config, logger *slog.Logger, parts *flight.Parts) (mqtt.Client, error) {
	mqttLogger := logger.With("component", "mqtt")

	var hooks []func(mqtt.Client)
	if cfg.Vision.Topic != "" {
		feed := vision.NewFeed(cfg.Vision.MaxAge, mqttLogger)
		parts.Vision = feed
		hooks = append(hooks, func(c mqtt.Client) {
			if err := feed.Subscribe(c, cfg.Vision.Topic); err != nil {
				mqttLogger.Error("vision subscription failed", "error", err)
			}
		})
	}

	client, err := broker.Connect(ctx, cfg.Broker, mqttLogger, hooks...)
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.Topic != "" {
		parts.Sinks = append(parts.Sinks, telemetry.NewMQTTPublisher(client, cfg.Telemetry.Topic, mqttLogger))
	}
	return client, nil
}
