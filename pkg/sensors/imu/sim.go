// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imu

import (
	"encoding/binary"
	"math"

	"github.com/Thermoquad/kestrel/pkg/pigpio"
)

// Simulate attaches a level, stationary BNO055 to the simulator at the
// configured bus and address
func Simulate(sim *pigpio.Sim, cfg Config) *pigpio.SimDevice {
	dev := sim.AddDevice(cfg.Bus, cfg.Address)
	dev.Set(regChipID, chipID)
	SetSimOrientation(dev, Quaternion{W: 1})
	return dev
}

// SetSimOrientation stores q in a simulated device's quaternion registers
func SetSimOrientation(dev *pigpio.SimDevice, q Quaternion) {
	var data [8]byte
	for i, v := range [4]float64{q.W, q.X, q.Y, q.Z} {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(math.Round(v/quatScale))))
	}
	dev.Set(regQuatW, data[:]...)
}
