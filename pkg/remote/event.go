// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package remote

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/kestrel/pkg/motion"
	"github.com/Thermoquad/kestrel/pkg/telemetry"
)

// DecodeEvent parses a websocket message into a governor event. Text
// messages carry JSON ({"event":"move","roll":2,"pitch":-1}); binary
// messages carry a CBOR event frame.
func DecodeEvent(messageType int, data []byte) (motion.Event, error) {
	var raw telemetry.Event
	switch messageType {
	case websocket.TextMessage:
		if err := json.Unmarshal(data, &raw); err != nil {
			return motion.Event{}, fmt.Errorf("invalid JSON event: %w", err)
		}
	case websocket.BinaryMessage:
		var err error
		if raw, err = telemetry.DecodeEvent(data); err != nil {
			return motion.Event{}, err
		}
	default:
		return motion.Event{}, fmt.Errorf("unsupported message type %d", messageType)
	}

	kind, err := motion.ParseEventKind(raw.Name)
	if err != nil {
		return motion.Event{}, err
	}
	ev := motion.Event{Kind: kind}
	if kind == motion.EventMove {
		if math.IsNaN(raw.Roll) || math.IsNaN(raw.Pitch) || math.IsInf(raw.Roll, 0) || math.IsInf(raw.Pitch, 0) {
			return motion.Event{}, fmt.Errorf("move needs finite roll and pitch")
		}
		ev.Roll, ev.Pitch = raw.Roll, raw.Pitch
	}
	return ev, nil
}

// EncodeEvent builds the binary frame for an event
func EncodeEvent(ev motion.Event) ([]byte, error) {
	return telemetry.EncodeEvent(telemetry.Event{
		Name:  ev.Kind.String(),
		Roll:  ev.Roll,
		Pitch: ev.Pitch,
	})
}
