// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sonar

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialConfig selects the serial rangefinder port
type SerialConfig struct {
	Port    string        `yaml:"port"`
	Baud    int           `yaml:"baud"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultSerialConfig returns the MaxBotix defaults
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:    "/dev/serial0",
		Baud:    9600,
		Timeout: 200 * time.Millisecond,
	}
}

// Serial reads "Rnnnn\r" frames (millimeters) from a streaming sensor
type Serial struct {
	port    io.ReadCloser
	timeout time.Duration
	buf     [64]byte
	parser  frameParser
}

// OpenSerial opens the serial port
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	// Short reads so the overall window is enforced by Measure
	if err := port.SetReadTimeout(20 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return NewSerial(port, cfg.Timeout), nil
}

// NewSerial wraps an open port. Reads returning (0, nil) are treated as a
// read timeout, as go.bug.st/serial does.
func NewSerial(port io.ReadCloser, timeout time.Duration) *Serial {
	return &Serial{port: port, timeout: timeout}
}

// Measure returns the newest complete frame read within the timeout
func (s *Serial) Measure() (float64, error) {
	deadline := time.Now().Add(s.timeout)
	for {
		n, err := s.port.Read(s.buf[:])
		if err != nil {
			return 0, fmt.Errorf("sonar serial read: %w", err)
		}

		mm, got := 0, false
		for _, b := range s.buf[:n] {
			if v, ok := s.parser.feed(b); ok {
				mm, got = v, true
			}
		}
		if got {
			return float64(mm) / 10, nil
		}
		if !time.Now().Before(deadline) {
			return 0, ErrTimeout
		}
	}
}

// Close closes the port
func (s *Serial) Close() error {
	return s.port.Close()
}

// frameParser assembles 'R' digits '\r' frames, discarding anything else
type frameParser struct {
	inFrame bool
	digits  int
	value   int
}

func (p *frameParser) feed(b byte) (int, bool) {
	switch {
	case b == 'R':
		p.inFrame, p.digits, p.value = true, 0, 0
	case !p.inFrame:
	case b >= '0' && b <= '9' && p.digits < 5:
		p.value = p.value*10 + int(b-'0')
		p.digits++
	case b == '\r' && p.digits > 0:
		p.inFrame = false
		return p.value, true
	default:
		p.inFrame = false
	}
	return 0, false
}
