// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the vehicle configuration file.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default. Durations are written the way time.ParseDuration reads them
// ("5ms", "2s").
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/kestrel/pkg/broker"
	"github.com/Thermoquad/kestrel/pkg/motion"
	"github.com/Thermoquad/kestrel/pkg/motor"
	"github.com/Thermoquad/kestrel/pkg/pigpio"
	"github.com/Thermoquad/kestrel/pkg/quad"
	"github.com/Thermoquad/kestrel/pkg/remote"
	"github.com/Thermoquad/kestrel/pkg/sensors/imu"
	"github.com/Thermoquad/kestrel/pkg/sensors/sonar"
)

// Range sensor backends
const (
	SonarGPIO   = "gpio"
	SonarSerial = "serial"
)

// Config is the whole vehicle configuration
type Config struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Loop      LoopConfig      `yaml:"loop"`
	Motors    MotorsConfig    `yaml:"motors"`
	Quad      quad.Config     `yaml:"quad"`
	Motion    motion.Config   `yaml:"motion"`
	IMU       imu.Config      `yaml:"imu"`
	Sonar     SonarConfig     `yaml:"sonar"`
	Vision    VisionConfig    `yaml:"vision"`
	Broker    broker.Config   `yaml:"broker"`
	Remote    remote.Config   `yaml:"remote"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DaemonConfig locates the GPIO daemon
type DaemonConfig struct {
	Address      string        `yaml:"address"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	LogExchanges bool          `yaml:"log_exchanges"` // debug-level log of every exchange
}

// LoopConfig paces the control loop
type LoopConfig struct {
	Period      time.Duration `yaml:"period"`
	ZeroRetries int           `yaml:"zero_retries"` // attempts to capture the attitude reference
	ZeroBackoff time.Duration `yaml:"zero_backoff"`
}

// MinLoopPeriod is the fastest the control loop may run
const MinLoopPeriod = 5 * time.Millisecond

// MotorsConfig is the shared ESC calibration plus one pin per position,
// in front-left, front-right, back-left, back-right order.
type MotorsConfig struct {
	Pins            [4]uint32     `yaml:"pins"`
	MinPulse        uint32        `yaml:"min_pulse"`
	MaxPulse        uint32        `yaml:"max_pulse"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	BlendFactor     float64       `yaml:"blend_factor"`
	IdleThreshold   float64       `yaml:"idle_threshold"`
}

// Motor returns the actuator configuration for position i
func (m MotorsConfig) Motor(i int) motor.Config {
	return motor.Config{
		Pin:             m.Pins[i],
		MinPulse:        m.MinPulse,
		MaxPulse:        m.MaxPulse,
		RefreshInterval: m.RefreshInterval,
		BlendFactor:     m.BlendFactor,
		IdleThreshold:   m.IdleThreshold,
	}
}

// SonarConfig selects and configures the range sensor
type SonarConfig struct {
	Backend string             `yaml:"backend"`
	GPIO    sonar.GPIOConfig   `yaml:"gpio"`
	Serial  sonar.SerialConfig `yaml:"serial"`
}

// VisionConfig configures the detection feed. An empty topic (or no broker)
// leaves the vehicle without vision; block-lock then holds the frame center.
type VisionConfig struct {
	Topic  string        `yaml:"topic"`
	MaxAge time.Duration `yaml:"max_age"`
}

// TelemetryConfig configures snapshot publishing
type TelemetryConfig struct {
	Period time.Duration `yaml:"period"`
	Topic  string        `yaml:"topic"` // MQTT topic; empty disables MQTT telemetry
}

// Default returns the configuration used when no file is given
func Default() Config {
	m := motor.DefaultConfig(0)
	return Config{
		Daemon: DaemonConfig{
			Address:     pigpio.Address(pigpio.DefaultHost, pigpio.DefaultPort),
			DialTimeout: 3 * time.Second,
		},
		Loop: LoopConfig{
			Period:      MinLoopPeriod,
			ZeroRetries: 50,
			ZeroBackoff: 20 * time.Millisecond,
		},
		Motors: MotorsConfig{
			Pins:            [4]uint32{17, 18, 27, 22},
			MinPulse:        m.MinPulse,
			MaxPulse:        m.MaxPulse,
			RefreshInterval: m.RefreshInterval,
			BlendFactor:     m.BlendFactor,
			IdleThreshold:   m.IdleThreshold,
		},
		Quad:   quad.DefaultConfig(),
		Motion: motion.DefaultConfig(),
		IMU:    imu.DefaultConfig(),
		Sonar: SonarConfig{
			Backend: SonarGPIO,
			GPIO:    sonar.DefaultGPIOConfig(),
			Serial:  sonar.DefaultSerialConfig(),
		},
		Vision: VisionConfig{
			Topic:  "kestrel/vision/detections",
			MaxAge: 500 * time.Millisecond,
		},
		Broker: broker.Config{
			ClientID: "kestrel",
		},
		Remote: remote.DefaultConfig(),
		Telemetry: TelemetryConfig{
			Period: 100 * time.Millisecond,
			Topic:  "kestrel/telemetry",
		},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML document over the defaults and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section
func (c Config) Validate() error {
	if c.Daemon.Address == "" {
		return errors.New("daemon: address is required")
	}
	if c.Daemon.DialTimeout <= 0 {
		return errors.New("daemon: dial_timeout must be positive")
	}
	if c.Loop.Period < MinLoopPeriod {
		return fmt.Errorf("loop: period %s is below the %s minimum", c.Loop.Period, MinLoopPeriod)
	}
	if c.Loop.ZeroRetries < 1 {
		return errors.New("loop: zero_retries must be at least 1")
	}

	seen := make(map[uint32]int)
	for i := range c.Motors.Pins {
		if prev, ok := seen[c.Motors.Pins[i]]; ok {
			return fmt.Errorf("motors: %s and %s share pin %d",
				quad.PositionName(prev), quad.PositionName(i), c.Motors.Pins[i])
		}
		seen[c.Motors.Pins[i]] = i
		if err := c.Motors.Motor(i).Validate(); err != nil {
			return fmt.Errorf("motors: %w", err)
		}
	}

	if err := c.Quad.Correction.Validate(); err != nil {
		return fmt.Errorf("quad: correction: %w", err)
	}
	if err := c.Motion.Validate(); err != nil {
		return fmt.Errorf("motion: %w", err)
	}

	switch c.Sonar.Backend {
	case SonarGPIO:
		if c.Sonar.GPIO.Trigger == c.Sonar.GPIO.Echo {
			return errors.New("sonar: trigger and echo must be different pins")
		}
	case SonarSerial:
		if c.Sonar.Serial.Port == "" {
			return errors.New("sonar: serial port is required")
		}
	default:
		return fmt.Errorf("sonar: backend %q must be %q or %q", c.Sonar.Backend, SonarGPIO, SonarSerial)
	}

	if c.Telemetry.Period < c.Loop.Period {
		return fmt.Errorf("telemetry: period %s is faster than the loop", c.Telemetry.Period)
	}
	return nil
}
