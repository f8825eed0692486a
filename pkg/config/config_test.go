// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/kestrel/pkg/motion"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.Loop.Period != Default().Loop.Period {
		t.Errorf("Loop.Period = %s, want default", cfg.Loop.Period)
	}
}

func TestDecode_OverlaysDefaults(t *testing.T) {
	doc := `
daemon:
  address: "raspberrypi.local:8888"
loop:
  period: 10ms
motors:
  pins: [5, 6, 13, 19]
  blend_factor: 0.5
motion:
  hover_altitude: 120
  altitude_gate: above-min
  rev_sequence:
    - {thrust: 20, duration: 250ms}
quad:
  roll: {kp: 1.5, ki: 0, kd: 0.1, tau: 0.02}
sonar:
  backend: serial
  serial:
    port: /dev/ttyUSB0
`
	cfg, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if cfg.Daemon.Address != "raspberrypi.local:8888" {
		t.Errorf("Daemon.Address = %q", cfg.Daemon.Address)
	}
	if cfg.Loop.Period != 10*time.Millisecond {
		t.Errorf("Loop.Period = %s, want 10ms", cfg.Loop.Period)
	}
	if cfg.Motors.Pins != [4]uint32{5, 6, 13, 19} {
		t.Errorf("Motors.Pins = %v", cfg.Motors.Pins)
	}
	if cfg.Motors.BlendFactor != 0.5 {
		t.Errorf("Motors.BlendFactor = %v, want 0.5", cfg.Motors.BlendFactor)
	}
	if cfg.Motors.MinPulse != 1000 {
		t.Errorf("Motors.MinPulse = %d, want default 1000", cfg.Motors.MinPulse)
	}
	if cfg.Motion.HoverAltitude != 120 || cfg.Motion.AltitudeGate != motion.GateAboveMin {
		t.Errorf("Motion = %+v", cfg.Motion)
	}
	if cfg.Motion.MaxSafeAltitude != Default().Motion.MaxSafeAltitude {
		t.Errorf("Motion.MaxSafeAltitude = %v, want default", cfg.Motion.MaxSafeAltitude)
	}
	if len(cfg.Motion.RevSequence) != 1 || cfg.Motion.RevSequence[0].Duration != 250*time.Millisecond {
		t.Errorf("Motion.RevSequence = %+v", cfg.Motion.RevSequence)
	}
	if cfg.Quad.Roll.Kp != 1.5 || cfg.Quad.Pitch.Kp != Default().Quad.Pitch.Kp {
		t.Errorf("Quad gains = %+v / %+v", cfg.Quad.Roll, cfg.Quad.Pitch)
	}
	if cfg.Sonar.Backend != SonarSerial || cfg.Sonar.Serial.Port != "/dev/ttyUSB0" || cfg.Sonar.Serial.Baud != 9600 {
		t.Errorf("Sonar = %+v", cfg.Sonar)
	}

	m := cfg.Motors.Motor(2)
	if m.Pin != 13 || m.BlendFactor != 0.5 {
		t.Errorf("Motor(2) = %+v", m)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"unknown key", "loop:\n  tempo: 5ms\n", "tempo"},
		{"syntax", "loop: [\n", "parse"},
		{"loop too fast", "loop:\n  period: 1ms\n", "minimum"},
		{"no zero retries", "loop:\n  zero_retries: 0\n", "zero_retries"},
		{"shared pin", "motors:\n  pins: [17, 17, 27, 22]\n", "share pin"},
		{"bad pulse range", "motors:\n  max_pulse: 900\n", "motors"},
		{"bad gate", "motion:\n  altitude_gate: sometimes\n", "altitude gate"},
		{"bad backend", "sonar:\n  backend: lidar\n", "backend"},
		{"sonar same pins", "sonar:\n  gpio:\n    trigger: 24\n", "different pins"},
		{"serial without port", "sonar:\n  backend: serial\n  serial:\n    port: \"\"\n", "port"},
		{"telemetry faster than loop", "telemetry:\n  period: 1ms\n", "telemetry"},
		{"no daemon", "daemon:\n  address: \"\"\n", "daemon"},
		{"no dial timeout", "daemon:\n  dial_timeout: 0s\n", "dial_timeout"},
		{"inverted correction", "quad:\n  correction: {min: 5, max: -5}\n", "correction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("Decode succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	if err := os.WriteFile(path, []byte("telemetry:\n  period: 250ms\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telemetry.Period != 250*time.Millisecond {
		t.Errorf("Telemetry.Period = %s, want 250ms", cfg.Telemetry.Period)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
