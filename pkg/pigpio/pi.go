// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pigpio

import (
	"encoding/binary"
	"fmt"
)

// Pi exposes typed daemon operations over a Commander.
// These are thin wrappers that build the record each command expects.
type Pi struct {
	c Commander
}

// NewPi wraps a Commander
func NewPi(c Commander) *Pi {
	return &Pi{c: c}
}

// Commander returns the underlying Commander
func (p *Pi) Commander() Commander {
	return p.c
}

func (p *Pi) do(cmd, p1, p2 uint32) (int32, error) {
	resp, err := p.c.Send(Command{Cmd: cmd, P1: p1, P2: p2}, nil, nil)
	if err != nil {
		return 0, err
	}
	return resp.Result(), nil
}

func (p *Pi) doExt(cmd, p1, p2 uint32, ext []byte, buf []byte) (Response, error) {
	return p.c.Send(Command{Cmd: cmd, P1: p1, P2: p2}, ext, buf)
}

// u32 encodes a single uint32 extension, the form most commands use to carry
// a third argument when P3 holds the extension length.
func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// SetMode sets a GPIO mode (ModeInput, ModeOutput)
func (p *Pi) SetMode(gpio, mode uint32) error {
	_, err := p.do(CmdModes, gpio, mode)
	return err
}

// Write sets a GPIO level
func (p *Pi) Write(gpio, level uint32) error {
	_, err := p.do(CmdWrite, gpio, level)
	return err
}

// Read returns a GPIO level
func (p *Pi) Read(gpio uint32) (uint32, error) {
	level, err := p.do(CmdRead, gpio, 0)
	if err != nil {
		return 0, err
	}
	return uint32(level), nil
}

// ServoPulsewidth starts servo pulses on gpio. A width of 0 switches pulses
// off; otherwise the daemon accepts 500-2500 microseconds.
func (p *Pi) ServoPulsewidth(gpio, width uint32) error {
	_, err := p.do(CmdServo, gpio, width)
	return err
}

// GetServoPulsewidth returns the pulse width currently set on gpio
func (p *Pi) GetServoPulsewidth(gpio uint32) (uint32, error) {
	width, err := p.do(CmdGPW, gpio, 0)
	if err != nil {
		return 0, err
	}
	return uint32(width), nil
}

// PWM sets the PWM dutycycle on gpio
func (p *Pi) PWM(gpio, duty uint32) error {
	_, err := p.do(CmdPWM, gpio, duty)
	return err
}

// Trigger sends a trigger pulse of pulseLen microseconds at level
func (p *Pi) Trigger(gpio, pulseLen, level uint32) error {
	_, err := p.doExt(CmdTrig, gpio, pulseLen, u32(level), nil)
	return err
}

// Tick returns the daemon's microsecond tick (wraps every ~72 minutes)
func (p *Pi) Tick() (uint32, error) {
	tick, err := p.do(CmdTick, 0, 0)
	return uint32(tick), err
}

// HardwareRevision returns the board revision
func (p *Pi) HardwareRevision() (uint32, error) {
	rev, err := p.do(CmdHWVer, 0, 0)
	return uint32(rev), err
}

// Version returns the daemon version
func (p *Pi) Version() (uint32, error) {
	v, err := p.do(CmdPIGPV, 0, 0)
	return uint32(v), err
}

// I2COpen opens a device on an I2C bus and returns its handle
func (p *Pi) I2COpen(bus, addr uint32) (uint32, error) {
	resp, err := p.doExt(CmdI2CO, bus, addr, u32(0), nil)
	if err != nil {
		return 0, err
	}
	return uint32(resp.Result()), nil
}

// I2CClose releases an I2C handle
func (p *Pi) I2CClose(handle uint32) error {
	_, err := p.do(CmdI2CC, handle, 0)
	return err
}

// I2CReadByteData reads one register byte
func (p *Pi) I2CReadByteData(handle, reg uint32) (byte, error) {
	v, err := p.do(CmdI2CRB, handle, reg)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// I2CWriteByteData writes one register byte
func (p *Pi) I2CWriteByteData(handle, reg uint32, value byte) error {
	_, err := p.doExt(CmdI2CWB, handle, reg, u32(uint32(value)), nil)
	return err
}

// I2CReadBlock reads len(buf) bytes starting at reg into buf and returns the
// filled prefix. buf is owned by the caller.
func (p *Pi) I2CReadBlock(handle, reg uint32, buf []byte) ([]byte, error) {
	resp, err := p.doExt(CmdI2CRI, handle, reg, u32(uint32(len(buf))), buf)
	if err != nil {
		return nil, err
	}
	if len(resp.Ext) != int(resp.Result()) {
		return nil, fmt.Errorf("%w: I2CRI returned %d bytes, extension holds %d", ErrProtocol, resp.Result(), len(resp.Ext))
	}
	return resp.Ext, nil
}
