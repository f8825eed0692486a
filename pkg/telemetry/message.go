// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry encodes flight state for the ground station.
//
// Binary messages are CBOR arrays of [msg_type, payload_map], with integer
// map keys to keep frames small on the radio link.
package telemetry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message types
const (
	MsgSnapshot uint8 = 0x01
	MsgEvent    uint8 = 0x02
)

// MessageName returns a label for a message type
func MessageName(msgType uint8) string {
	switch msgType {
	case MsgSnapshot:
		return "SNAPSHOT"
	case MsgEvent:
		return "EVENT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", msgType)
	}
}

// EncodeMessage builds a [msg_type, payload] frame
func EncodeMessage(msgType uint8, payload any) ([]byte, error) {
	data, err := cbor.Marshal([]any{msgType, payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", MessageName(msgType), err)
	}
	return data, nil
}

// ParseMessage splits a frame into its type and raw payload
func ParseMessage(data []byte) (uint8, cbor.RawMessage, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR payload")
	}

	var msg []cbor.RawMessage
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	var msgType uint64
	if err := cbor.Unmarshal(msg[0], &msgType); err != nil {
		return 0, nil, fmt.Errorf("expected uint for message type: %w", err)
	}
	if msgType > 255 {
		return 0, nil, fmt.Errorf("message type out of range: %d", msgType)
	}
	return uint8(msgType), msg[1], nil
}
