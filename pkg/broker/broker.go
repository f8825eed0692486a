// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package broker connects to the MQTT broker shared by the vision detector
// and telemetry consumers.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config selects the broker
type Config struct {
	URL      string `yaml:"url"` // e.g. tcp://localhost:1883; empty disables MQTT
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether a broker is configured
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Connect dials the broker, retrying until connected or ctx is done.
// The client reconnects on its own after a connection loss; onConnect runs
// after every (re)connection, so subscriptions belong there.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger, onConnect ...func(mqtt.Client)) (mqtt.Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("connected to MQTT broker", "url", cfg.URL)
		for _, fn := range onConnect {
			fn(client)
		}
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.URL, err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	return client, nil
}
