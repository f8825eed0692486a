// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pigpio implements a client for the pigpio daemon socket interface.
//
// Every exchange is a fixed 16-byte command record, optionally followed by a
// variable-length extension. The daemon echoes the command code and the first
// two parameters in its response and stores the result in the final field.
package pigpio

// Connection defaults
const (
	DefaultHost = "::1"
	DefaultPort = 8888
)

// Record layout
const (
	CommandSize = 16
	// MaxExtension bounds a single inbound extension; the daemon never returns
	// more than one block transfer's worth of data.
	MaxExtension = 1 << 16
)

// Command codes (pigpio socket interface)
const (
	CmdModes = 0
	CmdModeG = 1
	CmdPUD   = 2
	CmdRead  = 3
	CmdWrite = 4
	CmdPWM   = 5
	CmdPRS   = 6
	CmdPFS   = 7
	CmdServo = 8
	CmdWDog  = 9
	CmdBR1   = 10
	CmdBR2   = 11
	CmdTick  = 16
	CmdHWVer = 17
	CmdPRG   = 22
	CmdPFG   = 23
	CmdPIGPV = 26
	CmdTrig  = 37
	CmdProcP = 45
	CmdSLR   = 43
	CmdMics  = 46
	CmdMils  = 47
	CmdI2CO  = 54
	CmdI2CC  = 55
	CmdI2CRD = 56
	CmdI2CWD = 57
	CmdI2CRB = 61
	CmdI2CWB = 62
	CmdI2CRK = 65
	CmdI2CRI = 67
	CmdI2CWI = 68
	CmdI2CPK = 70
	CmdSPIR  = 73
	CmdSPIX  = 75
	CmdSERR  = 80
	CmdGPW   = 84
	CmdCF2   = 88
	CmdBI2CZ = 91
	CmdI2CZ  = 92
	CmdFR    = 106
	CmdFL    = 109
	CmdBSPIX = 113
	CmdBSCX  = 114
)

// GPIO modes for CmdModes
const (
	ModeInput  = 0
	ModeOutput = 1
)

// GPIO levels
const (
	Low  = 0
	High = 1
)

// extendedResponse lists the commands whose response is followed by a
// bulk-data extension of length equal to the (non-negative) result.
var extendedResponse = map[uint32]bool{
	CmdProcP: true,
	CmdSLR:   true,
	CmdI2CRD: true,
	CmdI2CRK: true,
	CmdI2CRI: true,
	CmdI2CPK: true,
	CmdSPIR:  true,
	CmdSPIX:  true,
	CmdSERR:  true,
	CmdCF2:   true,
	CmdBI2CZ: true,
	CmdI2CZ:  true,
	CmdFR:    true,
	CmdFL:    true,
	CmdBSPIX: true,
	CmdBSCX:  true,
}

// unsignedResult lists the commands whose result is a full 32-bit value, so a
// set top bit is not a failure.
var unsignedResult = map[uint32]bool{
	CmdBR1:   true,
	CmdBR2:   true,
	CmdTick:  true,
	CmdHWVer: true,
}

// ReturnsExtension reports whether responses to cmd carry an inbound extension.
func ReturnsExtension(cmd uint32) bool {
	return extendedResponse[cmd]
}

var commandNames = map[uint32]string{
	CmdModes: "MODES",
	CmdModeG: "MODEG",
	CmdPUD:   "PUD",
	CmdRead:  "READ",
	CmdWrite: "WRITE",
	CmdPWM:   "PWM",
	CmdPRS:   "PRS",
	CmdPFS:   "PFS",
	CmdServo: "SERVO",
	CmdWDog:  "WDOG",
	CmdBR1:   "BR1",
	CmdBR2:   "BR2",
	CmdTick:  "TICK",
	CmdHWVer: "HWVER",
	CmdPRG:   "PRG",
	CmdPFG:   "PFG",
	CmdPIGPV: "PIGPV",
	CmdTrig:  "TRIG",
	CmdProcP: "PROCP",
	CmdSLR:   "SLR",
	CmdMics:  "MICS",
	CmdMils:  "MILS",
	CmdI2CO:  "I2CO",
	CmdI2CC:  "I2CC",
	CmdI2CRD: "I2CRD",
	CmdI2CWD: "I2CWD",
	CmdI2CRB: "I2CRB",
	CmdI2CWB: "I2CWB",
	CmdI2CRK: "I2CRK",
	CmdI2CRI: "I2CRI",
	CmdI2CWI: "I2CWI",
	CmdI2CPK: "I2CPK",
	CmdSPIR:  "SPIR",
	CmdSPIX:  "SPIX",
	CmdSERR:  "SERR",
	CmdGPW:   "GPW",
	CmdCF2:   "CF2",
	CmdBI2CZ: "BI2CZ",
	CmdI2CZ:  "I2CZ",
	CmdFR:    "FR",
	CmdFL:    "FL",
	CmdBSPIX: "BSPIX",
	CmdBSCX:  "BSCX",
}

// CommandName returns the mnemonic for a command code
func CommandName(cmd uint32) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "UNKNOWN"
}
