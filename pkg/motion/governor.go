// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package motion sequences the flight phases.
//
// The Governor turns remote events, altitude and vision input into the
// attitude and base thrust setpoints of the mixer, then ticks the mixer.
// It runs on the control loop goroutine; events are handed to it by that
// goroutine too.
package motion

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Thermoquad/kestrel/pkg/pid"
	"github.com/Thermoquad/kestrel/pkg/quad"
	"github.com/Thermoquad/kestrel/pkg/safety"
	"github.com/Thermoquad/kestrel/pkg/sensors/sonar"
	"github.com/Thermoquad/kestrel/pkg/sensors/vision"
)

// ErrUnsafe is returned by Update once the safety flag has tripped
var ErrUnsafe = errors.New("safety flag tripped")

// Attitude is the mixer the governor drives; *quad.Quad satisfies it
type Attitude interface {
	SetSetpoints(quad.Setpoints)
	Update(now time.Time) error
}

// Governor is the motion state machine
type Governor struct {
	cfg    Config
	att    Attitude
	rng    sonar.Sensor
	vis    vision.Source
	flag   *safety.Flag
	logger *slog.Logger

	state       State
	target      float64
	altitude    float64
	altitudeOK  bool
	base        float64
	teleopRoll  float64
	teleopPitch float64
	setpoints   quad.Setpoints
	shutdown    bool

	x *pid.Controller
	y *pid.Controller
	z *pid.Controller

	revStep  int
	revStart time.Time
	revBegun bool

	lastUpdate time.Time
	updated    bool
}

// New creates a governor in IDLE
func New(att Attitude, rng sonar.Sensor, vis vision.Source, cfg Config, flag *safety.Flag, logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if vis == nil {
		vis = vision.Static{}
	}
	return &Governor{
		cfg:    cfg,
		att:    att,
		rng:    rng,
		vis:    vis,
		flag:   flag,
		logger: logger,
		x:      pid.New(cfg.GuidanceX, cfg.GuidanceLimits),
		y:      pid.New(cfg.GuidanceY, cfg.GuidanceLimits),
		z:      pid.New(cfg.Altitude, cfg.AltitudeLimits),
	}
}

// State returns the current flight phase
func (g *Governor) State() State {
	return g.state
}

// TargetAltitude returns the altitude the z loop is driving toward
func (g *Governor) TargetAltitude() float64 {
	return g.target
}

// Altitude returns the last measured altitude and whether this tick's
// measurement succeeded
func (g *Governor) Altitude() (float64, bool) {
	return g.altitude, g.altitudeOK
}

// Setpoints returns the setpoints handed to the mixer on the last tick
func (g *Governor) Setpoints() quad.Setpoints {
	return g.setpoints
}

// ShutdownRequested reports whether a shutdown event was received
func (g *Governor) ShutdownRequested() bool {
	return g.shutdown
}

// Handle applies a remote event. Events that make no sense in the current
// state are logged and ignored.
func (g *Governor) Handle(ev Event) {
	g.logger.Info("remote event", "event", ev.String(), "state", g.state.String())

	switch ev.Kind {
	case EventTakeoff:
		if g.state != Idle {
			g.ignore(ev)
			return
		}
		g.enterRev()

	case EventLand:
		switch g.state {
		case Rev:
			// Still on the ground
			g.enterIdle()
		case Takeoff, Blocklock, Teleop:
			g.enterLand()
		default:
			g.ignore(ev)
		}

	case EventMove:
		if g.state != Blocklock && g.state != Teleop {
			g.ignore(ev)
			return
		}
		if math.IsNaN(ev.Roll) || math.IsNaN(ev.Pitch) {
			g.ignore(ev)
			return
		}
		g.teleopRoll = clamp(ev.Roll, -g.cfg.TeleopLimit, g.cfg.TeleopLimit)
		g.teleopPitch = clamp(ev.Pitch, -g.cfg.TeleopLimit, g.cfg.TeleopLimit)
		g.transition(Teleop)

	case EventKill:
		g.flag.Trip("remote kill")
		g.enterIdle()

	case EventShutdown:
		g.shutdown = true
		g.enterIdle()

	default:
		g.ignore(ev)
	}
}

func (g *Governor) ignore(ev Event) {
	g.logger.Warn("event ignored", "event", ev.String(), "state", g.state.String())
}

func (g *Governor) transition(to State) {
	if g.state == to {
		return
	}
	g.logger.Info("state transition", "from", g.state.String(), "to", to.String(), "altitude", g.altitude)
	g.state = to
}

func (g *Governor) enterIdle() {
	g.transition(Idle)
	g.target = 0
	g.base = 0
	g.teleopRoll, g.teleopPitch = 0, 0
	g.x.Reset()
	g.y.Reset()
	g.z.Reset()
}

func (g *Governor) enterRev() {
	g.transition(Rev)
	g.revStep = 0
	g.revBegun = false
}

func (g *Governor) enterTakeoff() {
	g.transition(Takeoff)
	g.target = g.cfg.HoverAltitude
	g.z.Reset()
}

func (g *Governor) enterLand() {
	g.transition(Land)
	g.target = 0
}

// Update runs one governor tick and then ticks the mixer. Calls within the
// refresh interval of the previous one do nothing. A range timeout skips
// the altitude update for this tick; any other range error is returned.
func (g *Governor) Update(now time.Time) error {
	if !g.flag.OK() {
		return ErrUnsafe
	}
	if g.updated && now.Sub(g.lastUpdate) < g.cfg.RefreshInterval {
		return nil
	}
	g.lastUpdate = now
	g.updated = true

	if err := g.measureAltitude(); err != nil {
		return err
	}

	if g.altitudeOK && g.altitude > g.cfg.MaxSafeAltitude && g.state != Idle && g.state != Land {
		g.logger.Warn("maximum safe altitude exceeded", "altitude", g.altitude, "limit", g.cfg.MaxSafeAltitude)
		g.enterLand()
	}

	revTick := g.state == Rev

	var roll, pitch float64
	switch g.state {
	case Idle:
		g.base = 0

	case Rev:
		g.stepRev(now)

	case Takeoff:
		if g.altitudeOK && g.altitude >= g.cfg.HoverAltitude-g.cfg.AltitudeTolerance {
			g.transition(Blocklock)
			g.x.Reset()
			g.y.Reset()
		}

	case Blocklock:
		roll, pitch = g.guidance(now)

	case Teleop:
		roll, pitch = g.teleopRoll, g.teleopPitch

	case Land:
		g.target = 0
		if g.altitudeOK && g.altitude < g.cfg.LandedAltitude {
			g.enterIdle()
		}
	}

	if g.state != Idle {
		g.updateAltitudeLoop(now)
	}

	// REV owns the base for every tick it starts, including the one that
	// ends the sequence. The climb begins on the next tick.
	base := g.base
	if revTick {
		base = g.revThrust()
	}
	if g.state == Idle {
		roll, pitch, base = 0, 0, 0
	}

	g.setpoints = quad.Setpoints{Roll: roll, Pitch: pitch, Yaw: 0, Base: base}
	g.att.SetSetpoints(g.setpoints)
	if err := g.att.Update(now); err != nil {
		return fmt.Errorf("attitude update in %s: %w", g.state, err)
	}
	return nil
}

func (g *Governor) measureAltitude() error {
	if g.rng == nil {
		g.altitudeOK = false
		return nil
	}
	cm, err := g.rng.Measure()
	if errors.Is(err, sonar.ErrTimeout) {
		g.altitudeOK = false
		return nil
	}
	if err != nil {
		g.altitudeOK = false
		return fmt.Errorf("range sensor: %w", err)
	}
	g.altitude = cm
	g.altitudeOK = true
	return nil
}

// updateAltitudeLoop refreshes the base thrust from the z loop. Without a
// fresh altitude the previous base stays in effect.
func (g *Governor) updateAltitudeLoop(now time.Time) {
	if !g.altitudeOK {
		return
	}

	if g.cfg.AltitudeGate == GateAboveMin && g.altitude < g.cfg.MinAltitude {
		g.z.Reset()
		if g.state == Land {
			g.base = 0
		} else {
			g.base = g.cfg.TakeoffThrust
		}
		return
	}

	out := g.z.Update(g.target, g.altitude, now)
	if out < g.cfg.MinCutoffThrust {
		out = 0
	}
	g.base = out
}

// guidance steers toward the largest vision target, or holds the frame
// center when there is none or the vehicle is too low to trust it.
func (g *Governor) guidance(now time.Time) (float64, float64) {
	cx, cy := g.cfg.FrameWidth/2, g.cfg.FrameHeight/2
	tx, ty := cx, cy
	if g.altitudeOK && g.altitude >= g.cfg.MinAltitude {
		if box, ok := g.vis.LargestTarget(); ok {
			tx, ty = box.Center()
		}
	}
	// A target right of center needs positive roll, below center positive pitch
	roll := -g.x.Update(cx, tx, now)
	pitch := -g.y.Update(cy, ty, now)
	return roll, pitch
}

// stepRev advances the spin-up sequence and moves to TAKEOFF when it ends
func (g *Governor) stepRev(now time.Time) {
	if !g.revBegun {
		g.revBegun = true
		g.revStart = now
		g.revStep = 0
	}
	seq := g.cfg.RevSequence
	for g.revStep < len(seq) && now.Sub(g.revStart) >= seq[g.revStep].Duration {
		g.revStart = g.revStart.Add(seq[g.revStep].Duration)
		g.revStep++
	}
	if g.revStep >= len(seq) {
		g.enterTakeoff()
	}
}

func (g *Governor) revThrust() float64 {
	if g.revStep < len(g.cfg.RevSequence) {
		return g.cfg.RevSequence[g.revStep].Thrust
	}
	return 0
}

// RevProgress returns the current spin-up step and the number of steps
func (g *Governor) RevProgress() (int, int) {
	return g.revStep, len(g.cfg.RevSequence)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
