// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/kestrel/pkg/pid"
	"github.com/Thermoquad/kestrel/pkg/quad"
	"github.com/Thermoquad/kestrel/pkg/safety"
	"github.com/Thermoquad/kestrel/pkg/sensors/sonar"
	"github.com/Thermoquad/kestrel/pkg/sensors/vision"
)

// ============================================================
// Test Helpers
// ============================================================

type fakeAttitude struct {
	last    quad.Setpoints
	updates int
	err     error
}

func (a *fakeAttitude) SetSetpoints(sp quad.Setpoints) { a.last = sp }

func (a *fakeAttitude) Update(now time.Time) error {
	a.updates++
	return a.err
}

type fakeRange struct {
	cm  float64
	err error
}

func (r *fakeRange) Measure() (float64, error) {
	return r.cm, r.err
}

type harness struct {
	gov   *Governor
	att   *fakeAttitude
	rng   *fakeRange
	flag  *safety.Flag
	clock time.Time
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RevSequence = []RevStep{
		{Thrust: 20, Duration: 10 * time.Millisecond},
		{Thrust: 0, Duration: 10 * time.Millisecond},
	}
	cfg.Altitude = pid.Gains{Kp: 1}
	return cfg
}

func newHarness(t *testing.T, cfg Config, vis vision.Source) *harness {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	att := &fakeAttitude{}
	rng := &fakeRange{}
	flag := safety.New()
	return &harness{
		gov:   New(att, rng, vis, cfg, flag, nil),
		att:   att,
		rng:   rng,
		flag:  flag,
		clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the clock by one refresh interval and updates
func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.clock = h.clock.Add(5 * time.Millisecond)
	if err := h.gov.Update(h.clock); err != nil {
		t.Fatalf("Update in %s failed: %v", h.gov.State(), err)
	}
}

// driveTo brings the governor from IDLE into the requested state
func (h *harness) driveTo(t *testing.T, s State) {
	t.Helper()
	if s == Idle {
		return
	}
	h.rng.cm = 0
	h.gov.Handle(Event{Kind: EventTakeoff})
	if s == Rev {
		return
	}
	for i := 0; i < 10 && h.gov.State() == Rev; i++ {
		h.tick(t)
	}
	if s == Takeoff {
		return
	}
	h.rng.cm = h.gov.cfg.HoverAltitude
	h.tick(t)
	switch s {
	case Teleop:
		h.gov.Handle(Event{Kind: EventMove, Roll: 1})
	case Land:
		h.gov.Handle(Event{Kind: EventLand})
	}
	if h.gov.State() != s {
		t.Fatalf("driveTo(%s) ended in %s", s, h.gov.State())
	}
}

// ============================================================
// Scenario Tests
// ============================================================

func TestGovernor_TakeoffSequence(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	if h.gov.State() != Idle {
		t.Fatalf("initial state = %s, want IDLE", h.gov.State())
	}

	h.gov.Handle(Event{Kind: EventTakeoff})
	if h.gov.State() != Rev {
		t.Fatalf("state after takeoff = %s, want REV", h.gov.State())
	}

	// First rev pulse
	h.tick(t)
	if h.att.last.Base != 20 {
		t.Errorf("rev base = %v, want 20", h.att.last.Base)
	}
	h.tick(t)
	h.tick(t)
	if h.gov.State() != Rev || h.att.last.Base != 0 {
		t.Errorf("after 10ms: state %s base %v, want REV with base 0", h.gov.State(), h.att.last.Base)
	}
	h.tick(t)
	h.tick(t)
	if h.gov.State() != Takeoff {
		t.Fatalf("state after rev sequence = %s, want TAKEOFF", h.gov.State())
	}
	if h.att.last.Base != 0 {
		t.Errorf("base on the tick ending rev = %v, want 0", h.att.last.Base)
	}
	if h.gov.TargetAltitude() != 100 {
		t.Errorf("target altitude = %v, want hover 100", h.gov.TargetAltitude())
	}

	// Below the tolerance band: still climbing
	h.rng.cm = 89
	h.tick(t)
	if h.gov.State() != Takeoff {
		t.Fatalf("state at 89cm = %s, want TAKEOFF", h.gov.State())
	}
	h.rng.cm = 90
	h.tick(t)
	if h.gov.State() != Blocklock {
		t.Fatalf("state at 90cm = %s, want BLOCKLOCK", h.gov.State())
	}
}

func TestGovernor_MaxAltitudeForcesLand(t *testing.T) {
	for _, s := range []State{Rev, Takeoff, Blocklock, Teleop} {
		t.Run(s.String(), func(t *testing.T) {
			h := newHarness(t, testConfig(), nil)
			h.driveTo(t, s)

			h.rng.cm = 251
			h.tick(t)
			if h.gov.State() != Land {
				t.Errorf("state = %s, want LAND", h.gov.State())
			}
			if h.gov.TargetAltitude() != 0 {
				t.Errorf("target = %v, want 0", h.gov.TargetAltitude())
			}
		})
	}
}

func TestGovernor_MaxAltitudeIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.rng.cm = 400
	h.tick(t)
	if h.gov.State() != Idle {
		t.Errorf("state = %s, want IDLE", h.gov.State())
	}
}

func TestGovernor_LandToIdle(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Land)

	h.rng.cm = 40
	h.tick(t)
	if h.gov.State() != Land {
		t.Fatalf("state at 40cm = %s, want LAND", h.gov.State())
	}
	if h.gov.TargetAltitude() != 0 {
		t.Errorf("target in LAND = %v, want 0", h.gov.TargetAltitude())
	}

	h.rng.cm = 7.9
	h.tick(t)
	if h.gov.State() != Idle {
		t.Fatalf("state at 7.9cm = %s, want IDLE", h.gov.State())
	}
	if h.gov.TargetAltitude() != 0 {
		t.Errorf("target after landing = %v, want 0", h.gov.TargetAltitude())
	}
	if h.att.last != (quad.Setpoints{}) {
		t.Errorf("setpoints after landing = %+v, want zero", h.att.last)
	}
}

// ============================================================
// Altitude Loop Tests
// ============================================================

func TestGovernor_MinCutoffThrust(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Takeoff)

	h.rng.cm = 50
	h.tick(t)
	if h.att.last.Base != 50 {
		t.Errorf("base at 50cm = %v, want 50", h.att.last.Base)
	}

	// 100 - 96 = 4, below the 5% cutoff
	h.rng.cm = 96
	h.tick(t)
	if h.att.last.Base != 0 {
		t.Errorf("base = %v, want exactly 0 below cutoff", h.att.last.Base)
	}
}

func TestGovernor_RangeTimeoutSkipsAltitudeUpdate(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Takeoff)
	h.rng.cm = 40
	h.tick(t)
	base := h.att.last.Base

	h.rng.cm = 95
	h.rng.err = sonar.ErrTimeout
	h.tick(t)
	if h.gov.State() != Takeoff {
		t.Errorf("state changed to %s on a timed-out reading", h.gov.State())
	}
	if h.att.last.Base != base {
		t.Errorf("base = %v, want previous %v", h.att.last.Base, base)
	}
	if _, ok := h.gov.Altitude(); ok {
		t.Error("altitude reported valid after timeout")
	}
}

func TestGovernor_RangeFaultPropagates(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Takeoff)
	fault := errors.New("daemon gone")
	h.rng.err = fault
	if err := h.gov.Update(h.clock.Add(time.Second)); !errors.Is(err, fault) {
		t.Errorf("Update = %v, want range fault", err)
	}
}

func TestGovernor_AltitudeGateAboveMin(t *testing.T) {
	cfg := testConfig()
	cfg.AltitudeGate = GateAboveMin
	h := newHarness(t, cfg, nil)
	h.driveTo(t, Takeoff)

	h.rng.cm = 10
	h.tick(t)
	if h.att.last.Base != cfg.TakeoffThrust {
		t.Errorf("base below min altitude = %v, want takeoff thrust %v", h.att.last.Base, cfg.TakeoffThrust)
	}

	h.rng.cm = 60
	h.tick(t)
	if h.att.last.Base != 40 {
		t.Errorf("base above min altitude = %v, want 40", h.att.last.Base)
	}

	h.gov.Handle(Event{Kind: EventLand})
	h.rng.cm = 20
	h.tick(t)
	if h.att.last.Base != 0 {
		t.Errorf("base landing below min altitude = %v, want 0", h.att.last.Base)
	}
}

func TestGovernor_AltitudeGateAlways(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Takeoff)
	h.rng.cm = 10
	h.tick(t)
	if h.att.last.Base != 80 {
		t.Errorf("base = %v, want z loop output clamped to 80", h.att.last.Base)
	}
}

// ============================================================
// Guidance Tests
// ============================================================

func TestGovernor_BlocklockGuidance(t *testing.T) {
	cfg := testConfig()
	cfg.GuidanceX = pid.Gains{Kp: 0.1}
	cfg.GuidanceY = pid.Gains{Kp: 0.1}

	tests := []struct {
		name      string
		target    *vision.Box
		altitude  float64
		wantRoll  float64
		wantPitch float64
	}{
		{"no target holds center", nil, 100, 0, 0},
		{"target right and below", &vision.Box{X: 400, Y: 250, Width: 40, Height: 20}, 100, 8, 2},
		{"target left", &vision.Box{X: 260, Y: 230, Width: 20, Height: 20}, 100, -5, 0},
		{"too low for vision", &vision.Box{X: 400, Y: 250, Width: 40, Height: 20}, 25, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, cfg, vision.Static{Target: tt.target})
			h.driveTo(t, Blocklock)
			h.rng.cm = tt.altitude
			h.tick(t)
			if h.gov.State() != Blocklock {
				t.Fatalf("state = %s, want BLOCKLOCK", h.gov.State())
			}
			sp := h.att.last
			if sp.Roll != tt.wantRoll || sp.Pitch != tt.wantPitch {
				t.Errorf("roll/pitch = %v/%v, want %v/%v", sp.Roll, sp.Pitch, tt.wantRoll, tt.wantPitch)
			}
		})
	}
}

// ============================================================
// Event Tests
// ============================================================

func TestGovernor_Move(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.gov.Handle(Event{Kind: EventMove, Roll: 5})
	if h.gov.State() != Idle {
		t.Fatalf("move in IDLE changed state to %s", h.gov.State())
	}

	h.driveTo(t, Blocklock)
	h.gov.Handle(Event{Kind: EventMove, Roll: 40, Pitch: -3})
	if h.gov.State() != Teleop {
		t.Fatalf("state = %s, want TELEOP", h.gov.State())
	}
	h.rng.cm = 100
	h.tick(t)
	if h.att.last.Roll != 15 || h.att.last.Pitch != -3 {
		t.Errorf("roll/pitch = %v/%v, want 15/-3", h.att.last.Roll, h.att.last.Pitch)
	}

	h.gov.Handle(Event{Kind: EventLand})
	if h.gov.State() != Land {
		t.Errorf("state = %s, want LAND", h.gov.State())
	}
}

func TestGovernor_LandDuringRev(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Rev)
	h.gov.Handle(Event{Kind: EventLand})
	if h.gov.State() != Idle {
		t.Errorf("state = %s, want IDLE", h.gov.State())
	}
}

func TestGovernor_TakeoffIgnoredWhenFlying(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Blocklock)
	h.gov.Handle(Event{Kind: EventTakeoff})
	if h.gov.State() != Blocklock {
		t.Errorf("state = %s, want BLOCKLOCK", h.gov.State())
	}
}

func TestGovernor_Kill(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Teleop)
	h.gov.Handle(Event{Kind: EventKill})

	if h.flag.OK() {
		t.Error("kill did not trip the safety flag")
	}
	if h.gov.State() != Idle {
		t.Errorf("state = %s, want IDLE", h.gov.State())
	}
	if err := h.gov.Update(h.clock.Add(time.Second)); !errors.Is(err, ErrUnsafe) {
		t.Errorf("Update after kill = %v, want ErrUnsafe", err)
	}
}

func TestGovernor_Shutdown(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.driveTo(t, Takeoff)
	h.gov.Handle(Event{Kind: EventShutdown})
	if !h.gov.ShutdownRequested() {
		t.Error("shutdown not recorded")
	}
	if h.gov.State() != Idle {
		t.Errorf("state = %s, want IDLE", h.gov.State())
	}
	if !h.flag.OK() {
		t.Error("shutdown tripped the safety flag")
	}
}

func TestGovernor_RateLimited(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.gov.Update(h.clock)
	h.gov.Update(h.clock.Add(time.Millisecond))
	h.gov.Update(h.clock.Add(4 * time.Millisecond))
	if h.att.updates != 1 {
		t.Errorf("%d mixer ticks inside the refresh interval, want 1", h.att.updates)
	}
}

func TestGovernor_AttitudeFaultPropagates(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.att.err = quad.ErrNaNThrust
	if err := h.gov.Update(h.clock); !errors.Is(err, quad.ErrNaNThrust) {
		t.Errorf("Update = %v, want ErrNaNThrust", err)
	}
}

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		name    string
		want    EventKind
		wantErr bool
	}{
		{"takeoff", EventTakeoff, false},
		{"land", EventLand, false},
		{"move", EventMove, false},
		{"kill", EventKill, false},
		{"shutdown", EventShutdown, false},
		{"KILL", EventKill, false},
		{"hover", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventKind(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownEvent) {
					t.Errorf("ParseEventKind = %v, want ErrUnknownEvent", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseEventKind = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.AltitudeGate = "sometimes"
	if err := bad.Validate(); err == nil {
		t.Error("unknown altitude gate accepted")
	}
	bad = DefaultConfig()
	bad.MaxSafeAltitude = 50
	if err := bad.Validate(); err == nil {
		t.Error("max safe altitude below hover accepted")
	}
}
