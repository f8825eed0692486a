// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/kestrel/pkg/pigpio"
	"github.com/Thermoquad/kestrel/pkg/safety"
)

// ============================================================
// Test Helpers
// ============================================================

// recorder is a PulseWriter that records widths and can be told to fail
type recorder struct {
	mu      sync.Mutex
	widths  []uint32
	failAt  int // fail the write with this index (1-based); 0 never fails
	failErr error
}

func (r *recorder) ServoPulsewidth(gpio, width uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.widths)+1 >= r.failAt && width != 0 {
		return r.failErr
	}
	r.widths = append(r.widths, width)
	return nil
}

func (r *recorder) all() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, len(r.widths))
	copy(out, r.widths)
	return out
}

func (r *recorder) last() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.widths) == 0 {
		return 0
	}
	return r.widths[len(r.widths)-1]
}

func testConfig() Config {
	return Config{
		Pin:             4,
		MinPulse:        1000,
		MaxPulse:        2000,
		RefreshInterval: 10 * time.Millisecond,
		BlendFactor:     0.5,
		IdleThreshold:   0.5,
	}
}

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ============================================================
// Update Tests
// ============================================================

func TestMotor_InitArmsAtIdle(t *testing.T) {
	w := &recorder{}
	m := New(w, testConfig(), nil, nil)
	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if got := w.last(); got != 1000 {
		t.Errorf("arm pulse = %d, want 1000", got)
	}
}

func TestMotor_Smoothing(t *testing.T) {
	w := &recorder{}
	m := New(w, testConfig(), nil, nil)
	m.SetThrust(100)

	want := []uint32{1500, 1750, 1875}
	for i, pulse := range want {
		if err := m.Update(epoch.Add(time.Duration(i) * 10 * time.Millisecond)); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if got := w.last(); got != pulse {
			t.Errorf("step %d: pulse = %d, want %d", i, got, pulse)
		}
	}
}

func TestMotor_RateLimited(t *testing.T) {
	w := &recorder{}
	m := New(w, testConfig(), nil, nil)
	m.SetThrust(60)

	m.Update(epoch)
	m.Update(epoch.Add(4 * time.Millisecond))
	m.Update(epoch.Add(9 * time.Millisecond))
	if n := len(w.all()); n != 1 {
		t.Fatalf("%d writes inside the refresh interval, want 1", n)
	}
	m.Update(epoch.Add(10 * time.Millisecond))
	if n := len(w.all()); n != 2 {
		t.Errorf("%d writes after the refresh interval, want 2", n)
	}
}

func TestMotor_IdleBypassesSmoothing(t *testing.T) {
	tests := []struct {
		name   string
		thrust float64
	}{
		{"zero", 0},
		{"negative", -20},
		{"below idle threshold", 0.4},
		{"exactly idle threshold", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recorder{}
			m := New(w, testConfig(), nil, nil)

			// Build up smoothed state first
			m.SetThrust(90)
			for i := 0; i < 5; i++ {
				m.Update(epoch.Add(time.Duration(i) * 10 * time.Millisecond))
			}
			if m.Smoothed() == 0 {
				t.Fatal("smoothed state not built up")
			}

			m.SetThrust(tt.thrust)
			m.Update(epoch.Add(time.Second))
			if got := w.last(); got != 1000 {
				t.Errorf("pulse = %d, want idle 1000", got)
			}
			if m.Smoothed() != 0 {
				t.Errorf("smoothed = %v, want 0", m.Smoothed())
			}
		})
	}
}

func TestMotor_SetThrustClamps(t *testing.T) {
	m := New(&recorder{}, testConfig(), nil, nil)
	m.SetThrust(250)
	if m.Thrust() != 100 {
		t.Errorf("Thrust = %v, want 100", m.Thrust())
	}
	m.SetThrust(-3)
	if m.Thrust() != 0 {
		t.Errorf("Thrust = %v, want 0", m.Thrust())
	}
}

func TestMotor_UpdateErrorPropagates(t *testing.T) {
	bus := errors.New("bus fault")
	m := New(&recorder{failAt: 1, failErr: bus}, testConfig(), nil, nil)
	m.SetThrust(50)
	if err := m.Update(epoch); !errors.Is(err, bus) {
		t.Errorf("Update = %v, want bus fault", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"inverted pulses", func(c *Config) { c.MinPulse, c.MaxPulse = 2000, 1000 }, true},
		{"pulse too low", func(c *Config) { c.MinPulse = 100 }, true},
		{"pulse too high", func(c *Config) { c.MaxPulse = 3000 }, true},
		{"zero blend", func(c *Config) { c.BlendFactor = 0 }, true},
		{"negative interval", func(c *Config) { c.RefreshInterval = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(17)
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ============================================================
// Background Refresh Tests
// ============================================================

func TestMotor_BackgroundRefreshFailureTripsSafety(t *testing.T) {
	flag := safety.New()
	w := &recorder{failAt: 3, failErr: errors.New("daemon gone")}
	m := New(w, testConfig(), flag, nil)
	m.SetThrust(70)

	m.StartBackgroundRefresh(time.Millisecond)

	select {
	case <-flag.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("safety flag not tripped")
	}
	m.StopBackgroundRefresh()

	if flag.OK() {
		t.Error("flag still safe")
	}
	if got := w.last(); got != 0 {
		t.Errorf("last pulse = %d, want 0 after refresh failure", got)
	}
}

func TestMotor_KillJoinsWorker(t *testing.T) {
	w := &recorder{}
	m := New(w, testConfig(), nil, nil)
	m.SetThrust(80)
	m.StartBackgroundRefresh(time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for len(w.all()) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	m.Kill()
	if m.Refreshing() {
		t.Error("worker still registered after Kill")
	}
	after := w.all()
	if after[len(after)-1] != 0 {
		t.Fatalf("last pulse = %d, want 0", after[len(after)-1])
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(w.all()); n != len(after) {
		t.Errorf("%d writes after Kill returned", n-len(after))
	}
}

func TestMotor_StartTwiceIsNoop(t *testing.T) {
	m := New(&recorder{}, testConfig(), nil, nil)
	m.StartBackgroundRefresh(time.Millisecond)
	m.StartBackgroundRefresh(time.Millisecond)
	m.StopBackgroundRefresh()
	m.StopBackgroundRefresh()
	if m.Refreshing() {
		t.Error("worker still registered")
	}
}

func TestMotor_AgainstSimulatedDaemon(t *testing.T) {
	sim := pigpio.NewSim()
	pi := pigpio.NewPi(sim)
	m := New(pi, testConfig(), nil, nil)

	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	m.SetThrust(100)
	if err := m.Update(epoch); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := sim.Pulsewidth(4); got != 1500 {
		t.Errorf("daemon pulsewidth = %d, want 1500", got)
	}
	m.Kill()
	if got := sim.Pulsewidth(4); got != 0 {
		t.Errorf("daemon pulsewidth after Kill = %d, want 0", got)
	}
}
