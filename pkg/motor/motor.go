// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package motor drives one ESC through servo pulses.
//
// Thrust is a 0-100 value set by the mixer. Update smooths it toward the
// commanded value and converts it to a pulse width inside the motor's
// calibrated range. A background worker can call Update on a fixed period.
package motor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Thermoquad/kestrel/pkg/safety"
)

// PulseWriter issues servo pulse widths; *pigpio.Pi satisfies it
type PulseWriter interface {
	ServoPulsewidth(gpio, width uint32) error
}

// Config describes one motor
type Config struct {
	Pin             uint32        `yaml:"pin"`
	MinPulse        uint32        `yaml:"min_pulse"` // idle pulse, microseconds
	MaxPulse        uint32        `yaml:"max_pulse"` // full thrust pulse, microseconds
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	BlendFactor     float64       `yaml:"blend_factor"`
	IdleThreshold   float64       `yaml:"idle_threshold"`
}

// DefaultConfig returns the usual calibration for a 1000-2000us ESC on pin
func DefaultConfig(pin uint32) Config {
	return Config{
		Pin:             pin,
		MinPulse:        1000,
		MaxPulse:        2000,
		RefreshInterval: 5 * time.Millisecond,
		BlendFactor:     0.25,
		IdleThreshold:   0.5,
	}
}

// Validate checks the calibration
func (c Config) Validate() error {
	if c.MinPulse < 500 || c.MaxPulse > 2500 {
		return fmt.Errorf("pulse range %d-%d outside 500-2500us", c.MinPulse, c.MaxPulse)
	}
	if c.MinPulse >= c.MaxPulse {
		return fmt.Errorf("min pulse %d must be below max pulse %d", c.MinPulse, c.MaxPulse)
	}
	if c.BlendFactor <= 0 || c.BlendFactor > 1 {
		return fmt.Errorf("blend factor %.3f outside (0, 1]", c.BlendFactor)
	}
	if c.RefreshInterval < 0 {
		return errors.New("refresh interval must not be negative")
	}
	if c.IdleThreshold < 0 {
		return errors.New("idle threshold must not be negative")
	}
	return nil
}

// Motor is safe for concurrent use by the mixer and its own refresh worker.
type Motor struct {
	cfg    Config
	w      PulseWriter
	flag   *safety.Flag
	logger *slog.Logger

	mu         sync.Mutex
	thrust     float64
	smoothed   float64
	pulse      uint32
	lastUpdate time.Time
	updated    bool

	workerMu sync.Mutex
	stop     chan struct{}
	done     chan struct{}
}

// New creates a motor. A nil logger discards output.
func New(w PulseWriter, cfg Config, flag *safety.Flag, logger *slog.Logger) *Motor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Motor{
		cfg:    cfg,
		w:      w,
		flag:   flag,
		logger: logger.With("motor", cfg.Pin),
	}
}

// Pin returns the GPIO driving this motor
func (m *Motor) Pin() uint32 {
	return m.cfg.Pin
}

// Init arms the ESC by commanding the idle pulse
func (m *Motor) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thrust = 0
	m.smoothed = 0
	m.updated = false
	if err := m.w.ServoPulsewidth(m.cfg.Pin, m.cfg.MinPulse); err != nil {
		return fmt.Errorf("failed to arm motor on pin %d: %w", m.cfg.Pin, err)
	}
	m.pulse = m.cfg.MinPulse
	return nil
}

// SetThrust sets the commanded thrust, clamped to 0-100. NaN is treated as 0.
func (m *Motor) SetThrust(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	m.mu.Lock()
	m.thrust = v
	m.mu.Unlock()
}

// Thrust returns the commanded thrust
func (m *Motor) Thrust() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thrust
}

// Smoothed returns the current interpolated thrust
func (m *Motor) Smoothed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.smoothed
}

// Pulse returns the last pulse width written
func (m *Motor) Pulse() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulse
}

// Update moves the output one smoothing step toward the commanded thrust.
// Calls within RefreshInterval of the previous one do nothing.
func (m *Motor) Update(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updated && now.Sub(m.lastUpdate) < m.cfg.RefreshInterval {
		return nil
	}
	m.lastUpdate = now
	m.updated = true

	var pulse uint32
	if m.thrust <= m.cfg.IdleThreshold {
		m.smoothed = 0
		pulse = m.cfg.MinPulse
	} else {
		m.smoothed += m.cfg.BlendFactor * (m.thrust - m.smoothed)
		pulse = m.pulseFor(m.smoothed)
	}

	if err := m.w.ServoPulsewidth(m.cfg.Pin, pulse); err != nil {
		return fmt.Errorf("motor on pin %d: %w", m.cfg.Pin, err)
	}
	m.pulse = pulse
	return nil
}

func (m *Motor) pulseFor(thrust float64) uint32 {
	span := float64(m.cfg.MaxPulse - m.cfg.MinPulse)
	return m.cfg.MinPulse + uint32(math.Round(thrust/100*span))
}

// StartBackgroundRefresh runs Update every period until stopped. Any update
// error switches the motor off and trips the safety flag.
func (m *Motor) StartBackgroundRefresh(period time.Duration) {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.refresh(period, m.stop, m.done)
}

func (m *Motor) refresh(period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := m.Update(now); err != nil {
				m.logger.Error("refresh failed, stopping motor", "error", err)
				m.off()
				if m.flag != nil {
					m.flag.Trip(fmt.Sprintf("motor on pin %d refresh failed: %v", m.cfg.Pin, err))
				}
				return
			}
		}
	}
}

// StopBackgroundRefresh signals the worker and waits for it to exit. No
// write from the worker can happen after it returns.
func (m *Motor) StopBackgroundRefresh() {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
	m.done = nil
}

// Refreshing reports whether a background worker has been started and not
// yet stopped
func (m *Motor) Refreshing() bool {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()
	return m.stop != nil
}

// Kill stops the worker, then switches pulses off. A failed write is logged
// and not retried.
func (m *Motor) Kill() {
	m.StopBackgroundRefresh()
	m.off()
}

func (m *Motor) off() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thrust = 0
	m.smoothed = 0
	if err := m.w.ServoPulsewidth(m.cfg.Pin, 0); err != nil {
		m.logger.Error("failed to switch motor off", "error", err)
		return
	}
	m.pulse = 0
}
