// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package quad is the attitude mixer for an X-frame quadcopter.
//
// Each tick it reads the inertial sensor, runs roll/pitch/yaw PID loops
// against the setpoints and writes the mixed thrust to the four motors.
package quad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Thermoquad/kestrel/pkg/motor"
	"github.com/Thermoquad/kestrel/pkg/pid"
	"github.com/Thermoquad/kestrel/pkg/safety"
	"github.com/Thermoquad/kestrel/pkg/sensors/imu"
)

// ErrNaNThrust is the control fault raised when mixing produces NaN
var ErrNaNThrust = errors.New("mixed thrust is NaN")

// Sensor is the inertial sensor collaborator
type Sensor interface {
	Init() error
	// Orientation returns false when no new sample is ready
	Orientation() (imu.Quaternion, bool)
	Deinit() error
}

// Setpoints are the live targets: angles in degrees, base thrust 0-100
type Setpoints struct {
	Roll  float64
	Pitch float64
	Yaw   float64
	Base  float64
}

// Config holds the mixer tuning
type Config struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ArmDelay        time.Duration `yaml:"arm_delay"`     // ESC start-up beep window
	MotorRefresh    time.Duration `yaml:"motor_refresh"` // background refresh period
	Roll            pid.Gains     `yaml:"roll"`
	Pitch           pid.Gains     `yaml:"pitch"`
	Yaw             pid.Gains     `yaml:"yaw"`
	Correction      pid.Limits    `yaml:"correction"` // bounds for each axis correction
}

// DefaultConfig returns conservative tuning for a small frame
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 5 * time.Millisecond,
		ArmDelay:        2 * time.Second,
		MotorRefresh:    5 * time.Millisecond,
		Roll:            pid.Gains{Kp: 0.4, Ki: 0.05, Kd: 0.08, Tau: 0.02},
		Pitch:           pid.Gains{Kp: 0.4, Ki: 0.05, Kd: 0.08, Tau: 0.02},
		Yaw:             pid.Gains{Kp: 0.8, Ki: 0.02, Kd: 0, Tau: 0.02},
		Correction:      pid.Limits{Min: -20, Max: 20},
	}
}

// Quad owns the four motors and the three attitude loops. It is driven by
// the control loop goroutine and is not safe for concurrent use.
type Quad struct {
	cfg    Config
	sensor Sensor
	motors [4]*motor.Motor
	flag   *safety.Flag
	logger *slog.Logger

	roll  *pid.Controller
	pitch *pid.Controller
	yaw   *pid.Controller

	setpoints Setpoints
	angles    Angles
	zero      Angles
	zeroed    bool
	thrusts   [4]float64

	lastUpdate time.Time
	updated    bool
}

// New creates a mixer. The motors are owned by the mixer from here on.
func New(sensor Sensor, motors [4]*motor.Motor, cfg Config, flag *safety.Flag, logger *slog.Logger) *Quad {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Quad{
		cfg:    cfg,
		sensor: sensor,
		motors: motors,
		flag:   flag,
		logger: logger,
		roll:   pid.New(cfg.Roll, cfg.Correction),
		pitch:  pid.New(cfg.Pitch, cfg.Correction),
		yaw:    pid.New(cfg.Yaw, cfg.Correction),
	}
}

// Init brings up the sensor, arms the motors, waits out the ESC start-up
// window and starts each motor's background refresh.
func (q *Quad) Init(ctx context.Context) error {
	if err := q.sensor.Init(); err != nil {
		return fmt.Errorf("failed to initialize inertial sensor: %w", err)
	}
	for i, m := range q.motors {
		if err := m.Init(); err != nil {
			return fmt.Errorf("failed to arm %s motor: %w", PositionName(i), err)
		}
	}

	q.logger.Info("motors armed, waiting for ESC start-up", "delay", q.cfg.ArmDelay)
	select {
	case <-time.After(q.cfg.ArmDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if q.cfg.MotorRefresh > 0 {
		for _, m := range q.motors {
			m.StartBackgroundRefresh(q.cfg.MotorRefresh)
		}
	}
	return nil
}

// ZeroAttitude captures the current orientation as the reference. It
// returns false when no sample is available; the caller retries.
func (q *Quad) ZeroAttitude() bool {
	o, ok := q.sensor.Orientation()
	if !ok {
		return false
	}
	q.zero = EulerFromQuaternion(o)
	q.zeroed = true
	q.logger.Info("attitude zeroed", "roll", q.zero.Roll, "pitch", q.zero.Pitch, "yaw", q.zero.Yaw)
	return true
}

// Zeroed reports whether a reference attitude has been captured
func (q *Quad) Zeroed() bool {
	return q.zeroed
}

// SetSetpoints replaces the live setpoints
func (q *Quad) SetSetpoints(sp Setpoints) {
	q.setpoints = sp
}

// Setpoints returns the live setpoints
func (q *Quad) Setpoints() Setpoints {
	return q.setpoints
}

// Angles returns the last observed attitude relative to the zero reference
func (q *Quad) Angles() Angles {
	return q.angles
}

// Thrusts returns the thrusts last written to the motors
func (q *Quad) Thrusts() [4]float64 {
	return q.thrusts
}

// Motors returns the motors in position order
func (q *Quad) Motors() [4]*motor.Motor {
	return q.motors
}

// Update runs one mixer tick. A missing sensor sample leaves the previous
// motor commands in effect. A NaN thrust trips the safety flag and nothing
// is written.
func (q *Quad) Update(now time.Time) error {
	if q.updated && now.Sub(q.lastUpdate) < q.cfg.RefreshInterval {
		return nil
	}

	o, ok := q.sensor.Orientation()
	if !ok {
		return nil
	}
	q.lastUpdate = now
	q.updated = true
	q.angles = EulerFromQuaternion(o).Sub(q.zero)

	if q.setpoints.Base <= 0 {
		q.roll.Reset()
		q.pitch.Reset()
		q.yaw.Reset()
		return q.write(now, [4]float64{})
	}

	r := q.roll.Update(q.setpoints.Roll, q.angles.Roll, now)
	p := q.pitch.Update(q.setpoints.Pitch, q.angles.Pitch, now)
	y := q.yaw.Update(q.setpoints.Yaw, q.angles.Yaw, now)

	thrusts := Mix(q.setpoints.Base, r, p, y)
	for i, t := range thrusts {
		if math.IsNaN(t) {
			err := fmt.Errorf("%w: %s motor (roll %v, pitch %v, yaw %v)", ErrNaNThrust, PositionName(i), r, p, y)
			if q.flag.Trip(err.Error()) {
				q.logger.Error("control fault", "error", err)
			}
			return err
		}
		thrusts[i] = clamp(t, 0, 100)
	}
	return q.write(now, thrusts)
}

func (q *Quad) write(now time.Time, thrusts [4]float64) error {
	q.thrusts = thrusts
	for i, m := range q.motors {
		m.SetThrust(thrusts[i])
		// Without a background worker the mixer drives the refresh itself
		if !m.Refreshing() {
			if err := m.Update(now); err != nil {
				return err
			}
		}
	}
	return nil
}

// Kill stops every motor. It is safe to call more than once.
func (q *Quad) Kill() {
	for _, m := range q.motors {
		m.Kill()
	}
	q.thrusts = [4]float64{}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
