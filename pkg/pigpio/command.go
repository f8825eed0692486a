// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pigpio

import (
	"encoding/binary"
	"fmt"
)

// Command is the fixed-size record exchanged with the daemon.
//
// P3 is a union: a plain parameter, the length of an outbound extension, or
// (in a response) the command result.
type Command struct {
	Cmd uint32
	P1  uint32
	P2  uint32
	P3  int32
}

// Result returns the union field interpreted as a response result
func (c Command) Result() int32 {
	return c.P3
}

// String formats the record for logs
func (c Command) String() string {
	return fmt.Sprintf("%s(%d) p1=%d p2=%d p3=%d", CommandName(c.Cmd), c.Cmd, c.P1, c.P2, c.P3)
}

// MarshalBinary encodes the record in the daemon's little-endian layout
func (c Command) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CommandSize)
	c.put(buf)
	return buf, nil
}

func (c Command) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], c.Cmd)
	binary.LittleEndian.PutUint32(buf[4:8], c.P1)
	binary.LittleEndian.PutUint32(buf[8:12], c.P2)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(c.P3))
}

// UnmarshalBinary decodes a record; data must be exactly CommandSize bytes
func (c *Command) UnmarshalBinary(data []byte) error {
	if len(data) != CommandSize {
		return fmt.Errorf("command record must be %d bytes, got %d", CommandSize, len(data))
	}
	c.Cmd = binary.LittleEndian.Uint32(data[0:4])
	c.P1 = binary.LittleEndian.Uint32(data[4:8])
	c.P2 = binary.LittleEndian.Uint32(data[8:12])
	c.P3 = int32(binary.LittleEndian.Uint32(data[12:16]))
	return nil
}

// Response is a validated daemon reply
type Response struct {
	Command
	// Ext holds the inbound extension, a prefix of the caller's buffer
	Ext []byte
}

// CheckResponse validates a response record against the request that
// produced it. A mismatched echo is a protocol fault; a negative result is a
// command fault, except for commands returning unsigned values.
func CheckResponse(req, resp Command) error {
	if resp.Cmd != req.Cmd || resp.P1 != req.P1 || resp.P2 != req.P2 {
		return &ProtocolError{
			Request:  req,
			Response: resp,
			Message:  "response does not echo request",
		}
	}
	if resp.P3 < 0 && !unsignedResult[req.Cmd] {
		return &CommandError{Cmd: req.Cmd, Code: resp.P3}
	}
	return nil
}
