// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pid implements the PID control law used by every stabilization
// axis: trapezoidal integration, a band-limited derivative on the
// measurement, and output clamping with integrator back-correction.
package pid

import (
	"fmt"
	"math"
	"time"
)

// Gains are fixed at construction
type Gains struct {
	Kp  float64 `yaml:"kp"`
	Ki  float64 `yaml:"ki"`
	Kd  float64 `yaml:"kd"`
	Tau float64 `yaml:"tau"` // derivative filter time constant, seconds
}

// Limits bound the controller output
type Limits struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Validate checks that the limits form a non-empty range
func (l Limits) Validate() error {
	if math.IsNaN(l.Min) || math.IsNaN(l.Max) {
		return fmt.Errorf("limits must be numbers")
	}
	if l.Min > l.Max {
		return fmt.Errorf("min %.3f exceeds max %.3f", l.Min, l.Max)
	}
	return nil
}

// Controller is the state of one controlled axis. It is not safe for
// concurrent use.
type Controller struct {
	gains  Gains
	limits Limits

	integrator      float64
	differentiator  float64
	prevError       float64
	prevMeasurement float64
	prevTime        time.Time
	started         bool
	output          float64
}

// New creates a controller with zeroed state
func New(g Gains, l Limits) *Controller {
	return &Controller{gains: g, limits: l}
}

// Gains returns the controller gains
func (c *Controller) Gains() Gains {
	return c.gains
}

// Limits returns the output bounds
func (c *Controller) Limits() Limits {
	return c.limits
}

// Update runs one step of the control law and returns the clamped output.
func (c *Controller) Update(setpoint, measurement float64, now time.Time) float64 {
	// No previous timestamp means no elapsed time and no measurement history
	dt := 0.0
	if c.started {
		dt = now.Sub(c.prevTime).Seconds()
	} else {
		c.prevMeasurement = measurement
	}

	e := setpoint - measurement
	proportional := c.gains.Kp * e

	c.integrator += 0.5 * c.gains.Ki * dt * (e + c.prevError)

	denom := 2*c.gains.Tau + dt
	if denom != 0 {
		c.differentiator = -(2*c.gains.Kd*(measurement-c.prevMeasurement) +
			(2*c.gains.Tau-dt)*c.differentiator) / denom
	}

	unclamped := proportional + c.integrator + c.differentiator
	out := clamp(unclamped, c.limits.Min, c.limits.Max)
	if out != unclamped && c.gains.Ki != 0 {
		c.integrator += out - unclamped
	}

	c.prevError = e
	c.prevMeasurement = measurement
	c.prevTime = now
	c.started = true
	c.output = out
	return out
}

// Output returns the last output
func (c *Controller) Output() float64 {
	return c.output
}

// Integrator returns the accumulated integral term
func (c *Controller) Integrator() float64 {
	return c.integrator
}

// Differentiator returns the filtered derivative term
func (c *Controller) Differentiator() float64 {
	return c.differentiator
}

// Reset clears all mutable state; the next Update is treated as the first
func (c *Controller) Reset() {
	*c = Controller{gains: c.gains, limits: c.limits}
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
