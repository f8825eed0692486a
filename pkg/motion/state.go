// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"errors"
	"fmt"
	"strings"
)

// State is a flight phase
type State int

// Flight phases. IDLE is initial; LAND returns to IDLE.
const (
	Idle State = iota
	Rev
	Takeoff
	Blocklock
	Teleop
	Land
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Rev:
		return "REV"
	case Takeoff:
		return "TAKEOFF"
	case Blocklock:
		return "BLOCKLOCK"
	case Teleop:
		return "TELEOP"
	case Land:
		return "LAND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Airborne reports whether the motors may be producing lift
func (s State) Airborne() bool {
	return s != Idle && s != Rev
}

// EventKind is one of the remote commands the governor handles
type EventKind int

// Remote commands
const (
	EventTakeoff EventKind = iota
	EventLand
	EventMove
	EventKill
	EventShutdown
)

var eventNames = [...]string{
	EventTakeoff:  "takeoff",
	EventLand:     "land",
	EventMove:     "move",
	EventKill:     "kill",
	EventShutdown: "shutdown",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ErrUnknownEvent is returned for names outside the five remote commands
var ErrUnknownEvent = errors.New("unknown event")

// ParseEventKind maps an event name to its kind
func ParseEventKind(name string) (EventKind, error) {
	for k, n := range eventNames {
		if strings.EqualFold(name, n) {
			return EventKind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// Event is a remote command. Roll and Pitch are only used by EventMove.
type Event struct {
	Kind  EventKind
	Roll  float64
	Pitch float64
}

func (e Event) String() string {
	if e.Kind == EventMove {
		return fmt.Sprintf("move(roll=%.1f, pitch=%.1f)", e.Roll, e.Pitch)
	}
	return e.Kind.String()
}
