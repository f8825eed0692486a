// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pigpio

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"
)

// simBadCommand is returned for commands the simulator does not implement
const simBadCommand = -1

// Sim is an in-memory daemon for tests and bench runs without hardware.
// It implements Commander directly, and Serve speaks the wire protocol over a
// stream so the real Client can be exercised against it.
type Sim struct {
	mu         sync.Mutex
	start      time.Time
	modes      map[uint32]uint32
	levels     map[uint32]uint32
	servo      map[uint32]uint32
	pwm        map[uint32]uint32
	devices    map[uint64]*SimDevice
	handles    map[uint32]*SimDevice
	nextHandle uint32
	failures   map[uint32]error
	history    []Command
	onWrite    func(gpio, level uint32)
}

// SimDevice is a register-file I2C device attached to the simulator
type SimDevice struct {
	mu   sync.Mutex
	regs [256]byte
}

// Set stores register values starting at reg
func (d *SimDevice) Set(reg byte, values ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.regs[reg:], values)
}

// Get returns a register value
func (d *SimDevice) Get(reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

// NewSim creates an empty simulator
func NewSim() *Sim {
	return &Sim{
		start:    time.Now(),
		modes:    make(map[uint32]uint32),
		levels:   make(map[uint32]uint32),
		servo:    make(map[uint32]uint32),
		pwm:      make(map[uint32]uint32),
		devices:  make(map[uint64]*SimDevice),
		handles:  make(map[uint32]*SimDevice),
		failures: make(map[uint32]error),
	}
}

// AddDevice attaches an I2C device at bus/addr
func (s *Sim) AddDevice(bus, addr uint32) *SimDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev := &SimDevice{}
	s.devices[uint64(bus)<<32|uint64(addr)] = dev
	return dev
}

// Fail makes every subsequent exchange of cmd fail with err; a nil err
// clears the failure.
func (s *Sim) Fail(cmd uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, cmd)
		return
	}
	s.failures[cmd] = err
}

// OnWrite registers a hook called after every GPIO level write
func (s *Sim) OnWrite(fn func(gpio, level uint32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

// SetLevel sets an input level as seen by READ
func (s *Sim) SetLevel(gpio, level uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[gpio] = level
}

// Pulsewidth returns the servo pulse width last set on gpio
func (s *Sim) Pulsewidth(gpio uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servo[gpio]
}

// History returns a copy of every request received
func (s *Sim) History() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.history))
	copy(out, s.history)
	return out
}

// Send implements Commander
func (s *Sim) Send(cmd Command, ext []byte, buf []byte) (Response, error) {
	if len(ext) > 0 {
		cmd.P3 = int32(len(ext))
	}
	s.mu.Lock()
	if err := s.failures[cmd.Cmd]; err != nil {
		s.history = append(s.history, cmd)
		s.mu.Unlock()
		return Response{}, err
	}
	s.mu.Unlock()

	resp, out := s.handle(cmd, ext)
	if err := CheckResponse(cmd, resp.Command); err != nil {
		return resp, err
	}
	if len(out) > 0 {
		if len(out) > len(buf) {
			return resp, &ProtocolError{Request: cmd, Response: resp.Command, Message: "extension exceeds buffer"}
		}
		resp.Ext = buf[:copy(buf, out)]
	}
	return resp, nil
}

func (s *Sim) handle(cmd Command, ext []byte) (Response, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, cmd)
	resp := Response{Command: Command{Cmd: cmd.Cmd, P1: cmd.P1, P2: cmd.P2}}
	arg := uint32(0)
	if len(ext) >= 4 {
		arg = binary.LittleEndian.Uint32(ext)
	}

	switch cmd.Cmd {
	case CmdModes:
		s.modes[cmd.P1] = cmd.P2
	case CmdModeG:
		resp.P3 = int32(s.modes[cmd.P1])
	case CmdWrite:
		s.levels[cmd.P1] = cmd.P2
		if s.onWrite != nil {
			fn := s.onWrite
			s.mu.Unlock()
			fn(cmd.P1, cmd.P2)
			s.mu.Lock()
		}
	case CmdRead:
		resp.P3 = int32(s.levels[cmd.P1])
	case CmdServo:
		if cmd.P2 != 0 && (cmd.P2 < 500 || cmd.P2 > 2500) {
			resp.P3 = simBadCommand
			break
		}
		s.servo[cmd.P1] = cmd.P2
	case CmdGPW:
		resp.P3 = int32(s.servo[cmd.P1])
	case CmdPWM:
		s.pwm[cmd.P1] = cmd.P2
	case CmdTrig:
		s.levels[cmd.P1] = arg
		if s.onWrite != nil {
			fn := s.onWrite
			s.mu.Unlock()
			fn(cmd.P1, arg)
			s.mu.Lock()
		}
	case CmdTick:
		resp.P3 = int32(uint32(time.Since(s.start).Microseconds()))
	case CmdHWVer:
		resp.P3 = 0xa02082
	case CmdPIGPV:
		resp.P3 = 79
	case CmdI2CO:
		dev, ok := s.devices[uint64(cmd.P1)<<32|uint64(cmd.P2)]
		if !ok {
			resp.P3 = simBadCommand
			break
		}
		h := s.nextHandle
		s.nextHandle++
		s.handles[h] = dev
		resp.P3 = int32(h)
	case CmdI2CC:
		if _, ok := s.handles[cmd.P1]; !ok {
			resp.P3 = simBadCommand
			break
		}
		delete(s.handles, cmd.P1)
	case CmdI2CRB:
		dev, ok := s.handles[cmd.P1]
		if !ok {
			resp.P3 = simBadCommand
			break
		}
		resp.P3 = int32(dev.Get(byte(cmd.P2)))
	case CmdI2CWB:
		dev, ok := s.handles[cmd.P1]
		if !ok {
			resp.P3 = simBadCommand
			break
		}
		dev.Set(byte(cmd.P2), byte(arg))
	case CmdI2CRI:
		dev, ok := s.handles[cmd.P1]
		if !ok || arg == 0 || arg > 32 {
			resp.P3 = simBadCommand
			break
		}
		out := make([]byte, arg)
		dev.mu.Lock()
		for i := range out {
			out[i] = dev.regs[(int(cmd.P2)+i)&0xff]
		}
		dev.mu.Unlock()
		resp.P3 = int32(arg)
		return resp, out
	default:
		resp.P3 = simBadCommand
	}
	return resp, nil
}

// takesExtension lists the commands the simulator accepts an outbound
// extension for; P3 carries its length.
var takesExtension = map[uint32]bool{
	CmdTrig:  true,
	CmdI2CO:  true,
	CmdI2CWB: true,
	CmdI2CRI: true,
}

// Serve answers wire-protocol requests on rw until it is closed
func (s *Sim) Serve(rw io.ReadWriter) error {
	var hdr [CommandSize]byte
	for {
		if _, err := io.ReadFull(rw, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		var cmd Command
		if err := cmd.UnmarshalBinary(hdr[:]); err != nil {
			return err
		}
		var ext []byte
		if takesExtension[cmd.Cmd] && cmd.P3 > 0 {
			ext = make([]byte, cmd.P3)
			if _, err := io.ReadFull(rw, ext); err != nil {
				return err
			}
		}

		s.mu.Lock()
		failure := s.failures[cmd.Cmd]
		s.mu.Unlock()

		var resp Response
		var out []byte
		if failure != nil {
			resp = Response{Command: Command{Cmd: cmd.Cmd, P1: cmd.P1, P2: cmd.P2, P3: simBadCommand}}
		} else {
			resp, out = s.handle(cmd, ext)
		}

		msg := make([]byte, CommandSize+len(out))
		resp.put(msg)
		copy(msg[CommandSize:], out)
		if _, err := rw.Write(msg); err != nil {
			return err
		}
	}
}
