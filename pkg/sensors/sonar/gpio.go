// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sonar

import (
	"fmt"
	"runtime"

	"github.com/Thermoquad/kestrel/pkg/pigpio"
)

// GPIOBus is the subset of *pigpio.Pi the trigger/echo backend needs
type GPIOBus interface {
	SetMode(gpio, mode uint32) error
	Trigger(gpio, pulseLen, level uint32) error
	Read(gpio uint32) (uint32, error)
	Tick() (uint32, error)
}

// GPIOConfig wires the trigger and echo pins
type GPIOConfig struct {
	Trigger   uint32 `yaml:"trigger"`
	Echo      uint32 `yaml:"echo"`
	TimeoutUs uint32 `yaml:"timeout_us"` // bounds each phase of the echo
}

// DefaultGPIOConfig returns a 4 m window on the usual pins
func DefaultGPIOConfig() GPIOConfig {
	return GPIOConfig{
		Trigger:   23,
		Echo:      24,
		TimeoutUs: 25000,
	}
}

// GPIO is an HC-SR04 on two daemon GPIOs. The echo is timed with the
// daemon's microsecond tick, so resolution is bounded by the exchange
// latency.
type GPIO struct {
	bus GPIOBus
	cfg GPIOConfig
}

// NewGPIO configures the pins and returns the sensor
func NewGPIO(bus GPIOBus, cfg GPIOConfig) (*GPIO, error) {
	if err := bus.SetMode(cfg.Trigger, pigpio.ModeOutput); err != nil {
		return nil, fmt.Errorf("failed to configure trigger pin %d: %w", cfg.Trigger, err)
	}
	if err := bus.SetMode(cfg.Echo, pigpio.ModeInput); err != nil {
		return nil, fmt.Errorf("failed to configure echo pin %d: %w", cfg.Echo, err)
	}
	return &GPIO{bus: bus, cfg: cfg}, nil
}

// Measure fires a 10us trigger pulse and times the echo
func (g *GPIO) Measure() (float64, error) {
	if err := g.bus.Trigger(g.cfg.Trigger, 10, pigpio.High); err != nil {
		return 0, fmt.Errorf("sonar trigger: %w", err)
	}

	start, err := g.waitLevel(pigpio.High)
	if err != nil {
		return 0, err
	}
	end, err := g.waitLevel(pigpio.Low)
	if err != nil {
		return 0, err
	}
	return float64(end-start) / usPerCm, nil
}

// waitLevel polls the echo pin until it reads level and returns the tick
// at which it did
func (g *GPIO) waitLevel(level uint32) (uint32, error) {
	begin, err := g.bus.Tick()
	if err != nil {
		return 0, fmt.Errorf("sonar tick: %w", err)
	}
	for {
		v, err := g.bus.Read(g.cfg.Echo)
		if err != nil {
			return 0, fmt.Errorf("sonar echo: %w", err)
		}
		now, err := g.bus.Tick()
		if err != nil {
			return 0, fmt.Errorf("sonar tick: %w", err)
		}
		if v == level {
			return now, nil
		}
		// Unsigned subtraction handles tick wrap
		if now-begin > g.cfg.TimeoutUs {
			return 0, ErrTimeout
		}
		runtime.Gosched()
	}
}
