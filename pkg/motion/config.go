// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/kestrel/pkg/pid"
)

// Altitude gate policies
const (
	// GateAlways runs the altitude loop at every altitude
	GateAlways = "always"
	// GateAboveMin runs the altitude loop only above MinAltitude. Below it
	// the base thrust is TakeoffThrust while climbing or holding, and zero
	// while landing.
	GateAboveMin = "above-min"
)

// RevStep is one pulse of the spin-up sequence
type RevStep struct {
	Thrust   float64       `yaml:"thrust"`
	Duration time.Duration `yaml:"duration"`
}

// Config holds the governor tuning. Altitudes are in centimeters, thrust is
// 0-100 and angles are degrees.
type Config struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	HoverAltitude     float64 `yaml:"hover_altitude"`
	AltitudeTolerance float64 `yaml:"altitude_tolerance"`
	MaxSafeAltitude   float64 `yaml:"max_safe_altitude"`
	LandedAltitude    float64 `yaml:"landed_altitude"`
	MinAltitude       float64 `yaml:"min_altitude"` // vision unreliable below this
	MinCutoffThrust   float64 `yaml:"min_cutoff_thrust"`
	AltitudeGate      string  `yaml:"altitude_gate"`
	TakeoffThrust     float64 `yaml:"takeoff_thrust"`

	Altitude       pid.Gains  `yaml:"altitude"`
	AltitudeLimits pid.Limits `yaml:"altitude_limits"`
	GuidanceX      pid.Gains  `yaml:"guidance_x"`
	GuidanceY      pid.Gains  `yaml:"guidance_y"`
	GuidanceLimits pid.Limits `yaml:"guidance_limits"`
	TeleopLimit    float64    `yaml:"teleop_limit"`

	FrameWidth  float64 `yaml:"frame_width"`
	FrameHeight float64 `yaml:"frame_height"`

	RevSequence []RevStep `yaml:"rev_sequence"`
}

// DefaultConfig returns settings for a small indoor frame
func DefaultConfig() Config {
	return Config{
		RefreshInterval:   5 * time.Millisecond,
		HoverAltitude:     100,
		AltitudeTolerance: 10,
		MaxSafeAltitude:   250,
		LandedAltitude:    8,
		MinAltitude:       30,
		MinCutoffThrust:   5,
		AltitudeGate:      GateAlways,
		TakeoffThrust:     45,
		Altitude:          pid.Gains{Kp: 0.35, Ki: 0.2, Kd: 0.05, Tau: 0.05},
		AltitudeLimits:    pid.Limits{Min: 0, Max: 80},
		GuidanceX:         pid.Gains{Kp: 0.02, Ki: 0, Kd: 0.005, Tau: 0.05},
		GuidanceY:         pid.Gains{Kp: 0.02, Ki: 0, Kd: 0.005, Tau: 0.05},
		GuidanceLimits:    pid.Limits{Min: -8, Max: 8},
		TeleopLimit:       15,
		FrameWidth:        640,
		FrameHeight:       480,
		RevSequence: []RevStep{
			{Thrust: 15, Duration: 300 * time.Millisecond},
			{Thrust: 0, Duration: 200 * time.Millisecond},
			{Thrust: 25, Duration: 300 * time.Millisecond},
			{Thrust: 0, Duration: 200 * time.Millisecond},
			{Thrust: 15, Duration: 300 * time.Millisecond},
			{Thrust: 0, Duration: 200 * time.Millisecond},
		},
	}
}

// Validate checks that the altitude thresholds are ordered and the policy
// is known
func (c Config) Validate() error {
	if c.LandedAltitude < 0 {
		return errors.New("landed altitude must not be negative")
	}
	if c.HoverAltitude-c.AltitudeTolerance <= c.LandedAltitude {
		return fmt.Errorf("hover altitude %.1f (tolerance %.1f) must be above landed altitude %.1f",
			c.HoverAltitude, c.AltitudeTolerance, c.LandedAltitude)
	}
	if c.MaxSafeAltitude <= c.HoverAltitude+c.AltitudeTolerance {
		return fmt.Errorf("max safe altitude %.1f must be above hover altitude %.1f",
			c.MaxSafeAltitude, c.HoverAltitude)
	}
	if c.AltitudeGate != GateAlways && c.AltitudeGate != GateAboveMin {
		return fmt.Errorf("altitude gate %q must be %q or %q", c.AltitudeGate, GateAlways, GateAboveMin)
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return errors.New("frame size must be positive")
	}
	if err := c.AltitudeLimits.Validate(); err != nil {
		return fmt.Errorf("altitude limits: %w", err)
	}
	if err := c.GuidanceLimits.Validate(); err != nil {
		return fmt.Errorf("guidance limits: %w", err)
	}
	for i, s := range c.RevSequence {
		if s.Thrust < 0 || s.Thrust > 100 || s.Duration <= 0 {
			return fmt.Errorf("rev step %d: thrust %.1f for %s is invalid", i, s.Thrust, s.Duration)
		}
	}
	return nil
}
