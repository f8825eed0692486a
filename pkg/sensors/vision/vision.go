// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vision provides the largest detected target to the governor.
//
// Detection runs out of process; its results arrive as JSON over MQTT and
// are kept by a Feed until they go stale.
package vision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Box is a detection in frame pixel coordinates
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// Center returns the box centroid
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Largest returns the box with the greatest area. On equal areas the first
// one seen wins.
func Largest(boxes []Box) (Box, bool) {
	if len(boxes) == 0 {
		return Box{}, false
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Area() > best.Area() {
			best = b
		}
	}
	return best, true
}

// Source is the vision collaborator
type Source interface {
	LargestTarget() (Box, bool)
}

// Static always reports the same target, or none
type Static struct {
	Target *Box
}

// LargestTarget implements Source
func (s Static) LargestTarget() (Box, bool) {
	if s.Target == nil {
		return Box{}, false
	}
	return *s.Target, true
}

// Detections is the JSON payload published by the detector
type Detections struct {
	Boxes []Box `json:"boxes"`
}

// Feed holds the latest detection set. It is safe for concurrent use by
// the MQTT callback and the control loop.
type Feed struct {
	mu     sync.Mutex
	boxes  []Box
	at     time.Time
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewFeed creates a feed whose detections expire after maxAge
func NewFeed(maxAge time.Duration, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Feed{maxAge: maxAge, now: time.Now, logger: logger}
}

// Update replaces the detection set
func (f *Feed) Update(boxes []Box) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boxes = append(f.boxes[:0], boxes...)
	f.at = f.now()
}

// LargestTarget implements Source
func (f *Feed) LargestTarget() (Box, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.at.IsZero() || f.now().Sub(f.at) > f.maxAge {
		return Box{}, false
	}
	return Largest(f.boxes)
}

// HandleMessage decodes a detection payload into the feed
func (f *Feed) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	var d Detections
	if err := json.Unmarshal(msg.Payload(), &d); err != nil {
		f.logger.Warn("dropping malformed detection message", "topic", msg.Topic(), "error", err)
		return
	}
	f.Update(d.Boxes)
}

// Subscribe feeds detections published on topic
func (f *Feed) Subscribe(client mqtt.Client, topic string) error {
	token := client.Subscribe(topic, 0, f.HandleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	f.logger.Info("subscribed to detections", "topic", topic)
	return nil
}
