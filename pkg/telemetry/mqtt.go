// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Sink receives snapshots from the control loop. Publish must not block.
type Sink interface {
	Publish(s Snapshot) error
}

// MQTTClient is the publishing half of mqtt.Client
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher sends JSON snapshots to a broker topic
type MQTTPublisher struct {
	client MQTTClient
	topic  string
	logger *slog.Logger
}

// NewMQTTPublisher creates a publisher on topic
func NewMQTTPublisher(client MQTTClient, topic string, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTPublisher{client: client, topic: topic, logger: logger}
}

// Publish queues a snapshot without waiting for the broker
func (p *MQTTPublisher) Publish(s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.logger.Warn("telemetry publish failed", "topic", p.topic, "error", err)
		}
	}()
	return nil
}
