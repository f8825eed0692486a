// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sonar measures altitude with an ultrasonic rangefinder.
//
// Two backends are provided: an HC-SR04 style trigger/echo pair driven
// through the pigpio daemon, and a MaxBotix style serial sensor streaming
// ASCII range frames.
package sonar

import "errors"

// ErrTimeout is returned when no echo or frame arrives within the window.
// Callers skip the dependent update for that tick.
var ErrTimeout = errors.New("sonar: timeout")

// Sensor returns a distance in centimeters
type Sensor interface {
	Measure() (float64, error)
}

// Speed of sound round trip: 58.3 microseconds per centimeter
const usPerCm = 58.3
