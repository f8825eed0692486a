// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pigpio

import (
	"errors"
	"fmt"
)

// Error kinds. Transport faults (ErrSend, ErrReceive) mean the daemon could
// not be reached; ErrProtocol and ErrCommand mean it answered wrongly.
var (
	ErrSend     = errors.New("pigpio: send failed")
	ErrReceive  = errors.New("pigpio: receive failed")
	ErrProtocol = errors.New("pigpio: protocol violation")
	ErrCommand  = errors.New("pigpio: command failed")
	ErrClosed   = errors.New("pigpio: client closed")
)

// TransportError wraps an I/O failure on the daemon socket
type TransportError struct {
	Kind error // ErrSend or ErrReceive
	Cmd  uint32
	N    int // bytes transferred before the failure
	Want int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %s transferred %d/%d bytes: %v", e.Kind, CommandName(e.Cmd), e.N, e.Want, e.Err)
}

// Is matches the error kind
func (e *TransportError) Is(target error) bool {
	return target == e.Kind
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response that cannot belong to its request
type ProtocolError struct {
	Request  Command
	Response Command
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: %s (request %v, response %v)", ErrProtocol, e.Message, e.Request, e.Response)
}

// Is matches ErrProtocol
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// CommandError carries a daemon-reported negative result. The code is not
// interpreted beyond its sign.
type CommandError struct {
	Cmd  uint32
	Code int32
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%v: %s returned %d", ErrCommand, CommandName(e.Cmd), e.Code)
}

// Is matches ErrCommand
func (e *CommandError) Is(target error) bool {
	return target == ErrCommand
}

// IsTransport reports whether err is a send or receive fault
func IsTransport(err error) bool {
	return errors.Is(err, ErrSend) || errors.Is(err, ErrReceive)
}
