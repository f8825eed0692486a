// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package imu reads fused orientation from a BNO055 through the pigpio
// daemon's I2C commands.
package imu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Quaternion is a unit orientation quaternion
type Quaternion struct {
	W, X, Y, Z float64
}

// IsZero reports whether every component is zero, which the chip returns
// before fusion has produced a sample
func (q Quaternion) IsZero() bool {
	return q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0
}

// Register map (BNO055 page 0)
const (
	DefaultBus     = 1
	DefaultAddress = 0x28

	regChipID  = 0x00
	regQuatW   = 0x20
	regOprMode = 0x3D
	regSysTrig = 0x3F

	chipID = 0xA0

	modeConfig = 0x00
	modeNDOF   = 0x0C

	quatBlock = 8
	quatScale = 1.0 / (1 << 14)
)

// Start-up faults. These are fatal to process start-up.
var (
	ErrChipID = errors.New("imu: unexpected chip id")
	ErrMode   = errors.New("imu: fusion mode not accepted")
)

// Bus is the subset of *pigpio.Pi the driver needs
type Bus interface {
	I2COpen(bus, addr uint32) (uint32, error)
	I2CClose(handle uint32) error
	I2CReadByteData(handle, reg uint32) (byte, error)
	I2CWriteByteData(handle, reg uint32, value byte) error
	I2CReadBlock(handle, reg uint32, buf []byte) ([]byte, error)
}

// Config selects the device and its timing
type Config struct {
	Bus          uint32        `yaml:"bus"`
	Address      uint32        `yaml:"address"`
	SamplePeriod time.Duration `yaml:"sample_period"` // fusion output rate is 100 Hz
	Settle       time.Duration `yaml:"settle"`        // wait after switching modes
}

// DefaultConfig returns the usual wiring of a breakout board
func DefaultConfig() Config {
	return Config{
		Bus:          DefaultBus,
		Address:      DefaultAddress,
		SamplePeriod: 10 * time.Millisecond,
		Settle:       20 * time.Millisecond,
	}
}

// BNO055 is a fusion IMU on the daemon's I2C bus
type BNO055 struct {
	bus    Bus
	cfg    Config
	handle uint32
	open   bool
	buf    [quatBlock]byte
	last   time.Time
	now    func() time.Time
	sleep  func(time.Duration)
}

// NewBNO055 creates a driver; Init must be called before reading
func NewBNO055(bus Bus, cfg Config) *BNO055 {
	return &BNO055{
		bus:   bus,
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Init opens the device, checks its identity and switches it to 9-axis
// fusion mode, verifying the mode took effect.
func (b *BNO055) Init() error {
	h, err := b.bus.I2COpen(b.cfg.Bus, b.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to open i2c-%d address 0x%02x: %w", b.cfg.Bus, b.cfg.Address, err)
	}
	b.handle = h
	b.open = true

	id, err := b.bus.I2CReadByteData(h, regChipID)
	if err != nil {
		b.Deinit()
		return fmt.Errorf("failed to read chip id: %w", err)
	}
	if id != chipID {
		b.Deinit()
		return fmt.Errorf("%w: 0x%02x, want 0x%02x", ErrChipID, id, chipID)
	}

	if err := b.setMode(modeConfig); err != nil {
		b.Deinit()
		return err
	}
	// Use the external crystal for fusion accuracy
	if err := b.bus.I2CWriteByteData(h, regSysTrig, 0x80); err != nil {
		b.Deinit()
		return fmt.Errorf("failed to select external clock: %w", err)
	}
	if err := b.setMode(modeNDOF); err != nil {
		b.Deinit()
		return err
	}
	return nil
}

func (b *BNO055) setMode(mode byte) error {
	if err := b.bus.I2CWriteByteData(b.handle, regOprMode, mode); err != nil {
		return fmt.Errorf("failed to set operating mode 0x%02x: %w", mode, err)
	}
	b.sleep(b.cfg.Settle)
	got, err := b.bus.I2CReadByteData(b.handle, regOprMode)
	if err != nil {
		return fmt.Errorf("failed to read back operating mode: %w", err)
	}
	if got&0x0F != mode {
		return fmt.Errorf("%w: wrote 0x%02x, read 0x%02x", ErrMode, mode, got)
	}
	return nil
}

// Orientation returns the latest fused quaternion. It returns false when
// called faster than the sample period, on a bus error, or while fusion has
// not produced a sample yet. It never blocks beyond one bus exchange.
func (b *BNO055) Orientation() (Quaternion, bool) {
	if !b.open {
		return Quaternion{}, false
	}
	now := b.now()
	if !b.last.IsZero() && now.Sub(b.last) < b.cfg.SamplePeriod {
		return Quaternion{}, false
	}

	data, err := b.bus.I2CReadBlock(b.handle, regQuatW, b.buf[:])
	if err != nil || len(data) != quatBlock {
		return Quaternion{}, false
	}
	b.last = now

	q := DecodeQuaternion(data)
	if q.IsZero() {
		return Quaternion{}, false
	}
	return q, true
}

// DecodeQuaternion converts the chip's little-endian W, X, Y, Z block
func DecodeQuaternion(data []byte) Quaternion {
	c := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(data[i:]))) * quatScale
	}
	return Quaternion{W: c(0), X: c(2), Y: c(4), Z: c(6)}
}

// Deinit returns the chip to config mode and releases the handle
func (b *BNO055) Deinit() error {
	if !b.open {
		return nil
	}
	b.open = false
	var errs []error
	if err := b.bus.I2CWriteByteData(b.handle, regOprMode, modeConfig); err != nil {
		errs = append(errs, fmt.Errorf("failed to return imu to config mode: %w", err))
	}
	// The handle is released even when the mode write failed
	if err := b.bus.I2CClose(b.handle); err != nil {
		errs = append(errs, fmt.Errorf("failed to close imu handle: %w", err))
	}
	return errors.Join(errs...)
}
