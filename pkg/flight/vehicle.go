// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flight assembles the vehicle and runs its control loop.
//
// The loop goroutine is the only one that touches the governor and the
// mixer. Remote events arrive on a channel and are applied at the start of
// each tick.
package flight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/kestrel/pkg/config"
	"github.com/Thermoquad/kestrel/pkg/motion"
	"github.com/Thermoquad/kestrel/pkg/motor"
	"github.com/Thermoquad/kestrel/pkg/pigpio"
	"github.com/Thermoquad/kestrel/pkg/quad"
	"github.com/Thermoquad/kestrel/pkg/safety"
	"github.com/Thermoquad/kestrel/pkg/sensors/sonar"
	"github.com/Thermoquad/kestrel/pkg/sensors/vision"
	"github.com/Thermoquad/kestrel/pkg/telemetry"
)

var (
	// ErrFault is returned by Run when the flight ended on a tripped
	// safety flag
	ErrFault = errors.New("flight aborted")
	// ErrNoAttitude is returned when no attitude reference could be taken
	ErrNoAttitude = errors.New("no attitude reference")
)

// Parts are the collaborators a vehicle flies with
type Parts struct {
	Daemon pigpio.Commander
	Stats  *pigpio.Statistics // optional, reported in telemetry
	IMU    quad.Sensor
	Range  sonar.Sensor
	Vision vision.Source // nil flies without vision
	Events <-chan motion.Event
	Sinks  []telemetry.Sink
}

// Vehicle is the flight controller context: one safety flag, four motors,
// the mixer and the governor.
type Vehicle struct {
	cfg    config.Config
	parts  Parts
	flag   *safety.Flag
	logger *slog.Logger

	motors [4]*motor.Motor
	quad   *quad.Quad
	gov    *motion.Governor

	start       time.Time
	lastPublish time.Time
	published   bool
}

// New wires a vehicle. Nothing touches hardware until Run.
func New(parts Parts, cfg config.Config, logger *slog.Logger) (*Vehicle, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if parts.Daemon == nil || parts.IMU == nil {
		return nil, errors.New("daemon and inertial sensor are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Vehicle{
		cfg:    cfg,
		parts:  parts,
		flag:   safety.New(),
		logger: logger,
	}
	pi := pigpio.NewPi(parts.Daemon)
	for i := range v.motors {
		v.motors[i] = motor.New(pi, cfg.Motors.Motor(i), v.flag,
			logger.With("motor", quad.PositionName(i)))
	}
	v.quad = quad.New(parts.IMU, v.motors, cfg.Quad, v.flag, logger.With("component", "quad"))
	v.gov = motion.New(v.quad, parts.Range, parts.Vision, cfg.Motion, v.flag, logger.With("component", "motion"))
	return v, nil
}

// Flag returns the vehicle's safety flag
func (v *Vehicle) Flag() *safety.Flag {
	return v.flag
}

// Governor returns the motion governor
func (v *Vehicle) Governor() *motion.Governor {
	return v.gov
}

// Quad returns the attitude mixer
func (v *Vehicle) Quad() *quad.Quad {
	return v.quad
}

// Start arms the motors and captures the attitude reference. Any failure
// trips the safety flag.
func (v *Vehicle) Start(ctx context.Context) error {
	v.start = time.Now()
	if err := v.quad.Init(ctx); err != nil {
		return v.fail("init", err)
	}
	if err := v.zero(ctx); err != nil {
		return v.fail("init", err)
	}
	return nil
}

func (v *Vehicle) zero(ctx context.Context) error {
	backoff := v.cfg.Loop.ZeroBackoff
	for attempt := 1; attempt <= v.cfg.Loop.ZeroRetries; attempt++ {
		if v.quad.ZeroAttitude() {
			return nil
		}
		v.logger.Debug("no inertial sample yet", "attempt", attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrNoAttitude, v.cfg.Loop.ZeroRetries)
}

// Run starts the vehicle and flies until the safety flag trips, ctx is
// cancelled or a shutdown event arrives. The motors are stopped on every
// exit path. A tripped flag is reported as ErrFault.
func (v *Vehicle) Run(ctx context.Context) error {
	defer v.Stop()

	if err := v.Start(ctx); err != nil {
		return err
	}
	v.logger.Info("control loop running", "period", v.period())

	ticker := time.NewTicker(v.period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			v.logger.Info("control loop cancelled")
			return nil
		case <-v.flag.Done():
			return v.fault(nil)
		case now := <-ticker.C:
			if err := v.Step(now); err != nil {
				return v.fault(err)
			}
			if v.gov.ShutdownRequested() {
				v.logger.Info("shutdown requested")
				return nil
			}
		}
	}
}

func (v *Vehicle) period() time.Duration {
	return max(v.cfg.Loop.Period, config.MinLoopPeriod)
}

// Step runs one control tick: pending events, then the governor, then
// telemetry when it is due. A governor error trips the safety flag.
func (v *Vehicle) Step(now time.Time) error {
	v.drainEvents()
	if err := v.gov.Update(now); err != nil {
		if !errors.Is(err, motion.ErrUnsafe) {
			v.flag.Trip(err.Error())
		}
		v.publish(now)
		return err
	}
	if !v.published || now.Sub(v.lastPublish) >= v.cfg.Telemetry.Period {
		v.publish(now)
	}
	return nil
}

func (v *Vehicle) drainEvents() {
	if v.parts.Events == nil {
		return
	}
	for {
		select {
		case ev := <-v.parts.Events:
			v.gov.Handle(ev)
		default:
			return
		}
	}
}

// RunRev spins the motors through the start-up sequence and stops them
// once it completes. It is a bench test and never leaves the ground.
func (v *Vehicle) RunRev(ctx context.Context) error {
	defer v.Stop()

	if err := v.Start(ctx); err != nil {
		return err
	}
	v.gov.Handle(motion.Event{Kind: motion.EventTakeoff})

	ticker := time.NewTicker(v.period())
	defer ticker.Stop()
	for v.gov.State() == motion.Rev {
		select {
		case <-ctx.Done():
			return nil
		case <-v.flag.Done():
			return v.fault(nil)
		case now := <-ticker.C:
			if err := v.Step(now); err != nil {
				return v.fault(err)
			}
		}
	}
	v.logger.Info("rev sequence complete")
	return nil
}

// Stop kills the motors and releases the inertial sensor. It is safe to
// call more than once.
func (v *Vehicle) Stop() {
	v.quad.Kill()
	if err := v.parts.IMU.Deinit(); err != nil {
		v.logger.Warn("failed to release inertial sensor", "error", err)
	}
	v.publish(time.Now())
}

func (v *Vehicle) fail(stage string, err error) error {
	v.flag.Trip(fmt.Sprintf("%s: %v", stage, err))
	return v.fault(err)
}

func (v *Vehicle) fault(err error) error {
	if errors.Is(err, motion.ErrUnsafe) {
		// The flag was tripped elsewhere; its reason says more
		err = nil
	}
	reason := v.flag.Reason()
	v.logger.Error("flight aborted", "kind", FaultKind(err, reason), "reason", reason)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFault, err)
	}
	return fmt.Errorf("%w: %s", ErrFault, reason)
}

// FaultKind names the class of a fault for the operator
func FaultKind(err error, reason string) string {
	switch {
	case err == nil && reason == "remote kill":
		return "remote-kill"
	case err == nil:
		return "safety"
	case errors.Is(err, pigpio.ErrSend), errors.Is(err, pigpio.ErrReceive), errors.Is(err, pigpio.ErrClosed):
		return "daemon-transport"
	case errors.Is(err, pigpio.ErrProtocol):
		return "daemon-protocol"
	case errors.Is(err, pigpio.ErrCommand):
		return "daemon-command"
	case errors.Is(err, quad.ErrNaNThrust):
		return "control"
	case errors.Is(err, ErrNoAttitude):
		return "attitude-reference"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
