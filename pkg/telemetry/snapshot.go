// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is the flight state published once per telemetry period
type Snapshot struct {
	Time           int64      `cbor:"0,keyasint" json:"time_ms"`
	State          string     `cbor:"1,keyasint" json:"state"`
	Altitude       float64    `cbor:"2,keyasint" json:"altitude_cm"`
	AltitudeValid  bool       `cbor:"3,keyasint" json:"altitude_valid"`
	TargetAltitude float64    `cbor:"4,keyasint" json:"target_altitude_cm"`
	SetRoll        float64    `cbor:"5,keyasint" json:"set_roll"`
	SetPitch       float64    `cbor:"6,keyasint" json:"set_pitch"`
	SetYaw         float64    `cbor:"7,keyasint" json:"set_yaw"`
	Base           float64    `cbor:"8,keyasint" json:"base"`
	Roll           float64    `cbor:"9,keyasint" json:"roll"`
	Pitch          float64    `cbor:"10,keyasint" json:"pitch"`
	Yaw            float64    `cbor:"11,keyasint" json:"yaw"`
	Thrusts        [4]float64 `cbor:"12,keyasint" json:"thrusts"`
	Safe           bool       `cbor:"13,keyasint" json:"safe"`
	Fault          string     `cbor:"14,keyasint,omitempty" json:"fault,omitempty"`
	Exchanges      uint64     `cbor:"15,keyasint" json:"daemon_exchanges"`
	DaemonErrors   uint64     `cbor:"16,keyasint" json:"daemon_errors"`
}

// EncodeSnapshot builds a snapshot frame
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return EncodeMessage(MsgSnapshot, s)
}

// DecodeSnapshot parses a snapshot frame
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	msgType, payload, err := ParseMessage(data)
	if err != nil {
		return s, err
	}
	if msgType != MsgSnapshot {
		return s, fmt.Errorf("expected %s, got %s", MessageName(MsgSnapshot), MessageName(msgType))
	}
	if err := cbor.Unmarshal(payload, &s); err != nil {
		return s, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// Event is a remote command as carried in a binary frame
type Event struct {
	Name  string  `cbor:"0,keyasint" json:"event"`
	Roll  float64 `cbor:"1,keyasint,omitempty" json:"roll,omitempty"`
	Pitch float64 `cbor:"2,keyasint,omitempty" json:"pitch,omitempty"`
}

// EncodeEvent builds an event frame
func EncodeEvent(e Event) ([]byte, error) {
	return EncodeMessage(MsgEvent, e)
}

// DecodeEvent parses an event frame
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	msgType, payload, err := ParseMessage(data)
	if err != nil {
		return e, err
	}
	if msgType != MsgEvent {
		return e, fmt.Errorf("expected %s, got %s", MessageName(MsgEvent), MessageName(msgType))
	}
	if err := cbor.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}
