// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pigpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// Commander performs one request/response exchange with the daemon.
//
// ext is an optional outbound extension; its length replaces P3. buf is an
// optional caller-owned buffer receiving the inbound extension for commands
// that return bulk data; Response.Ext aliases it.
type Commander interface {
	Send(cmd Command, ext []byte, buf []byte) (Response, error)
}

// Client is a Commander over a single stream connection.
// It is safe for concurrent use; exchanges are serialized.
type Client struct {
	mu     sync.Mutex
	conn   io.ReadWriteCloser
	closed bool
	stats  *Statistics
}

// Address joins a host and port into a dial address
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Dial connects to the daemon at addr (host:port)
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pigpio daemon at %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Commands are tiny and latency bound
		tc.SetNoDelay(true)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{
		conn:  conn,
		stats: NewStatistics(),
	}
}

// Statistics returns the client's exchange counters
func (c *Client) Statistics() *Statistics {
	return c.stats
}

// Send performs one exchange. The lock is held only for this exchange.
func (c *Client) Send(cmd Command, ext []byte, buf []byte) (Response, error) {
	if len(ext) > 0 {
		cmd.P3 = int32(len(ext))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, ErrClosed
	}

	start := time.Now()
	resp, err := c.exchange(cmd, ext, buf)
	c.stats.Record(err, len(resp.Ext), time.Since(start))
	return resp, err
}

func (c *Client) exchange(cmd Command, ext []byte, buf []byte) (Response, error) {
	out := make([]byte, CommandSize+len(ext))
	cmd.put(out)
	copy(out[CommandSize:], ext)

	n, err := c.conn.Write(out)
	if err == nil && n != len(out) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return Response{}, &TransportError{Kind: ErrSend, Cmd: cmd.Cmd, N: n, Want: len(out), Err: err}
	}

	var hdr [CommandSize]byte
	n, err = io.ReadFull(c.conn, hdr[:])
	if err != nil {
		return Response{}, &TransportError{Kind: ErrReceive, Cmd: cmd.Cmd, N: n, Want: CommandSize, Err: err}
	}

	var resp Response
	if err := resp.UnmarshalBinary(hdr[:]); err != nil {
		return Response{}, err
	}
	if err := CheckResponse(cmd, resp.Command); err != nil {
		return resp, err
	}

	if !ReturnsExtension(cmd.Cmd) || resp.P3 == 0 {
		return resp, nil
	}

	size := int(resp.P3)
	if size > MaxExtension {
		return resp, &ProtocolError{Request: cmd, Response: resp.Command,
			Message: fmt.Sprintf("extension of %d bytes exceeds limit %d", size, MaxExtension)}
	}
	if size > len(buf) {
		// Keep the stream aligned for the next exchange before failing
		if _, err := io.CopyN(io.Discard, c.conn, int64(size)); err != nil {
			return resp, &TransportError{Kind: ErrReceive, Cmd: cmd.Cmd, Want: size, Err: err}
		}
		return resp, &ProtocolError{Request: cmd, Response: resp.Command,
			Message: fmt.Sprintf("extension of %d bytes exceeds buffer of %d", size, len(buf))}
	}

	n, err = io.ReadFull(c.conn, buf[:size])
	if err != nil {
		return resp, &TransportError{Kind: ErrReceive, Cmd: cmd.Cmd, N: n, Want: size, Err: err}
	}
	resp.Ext = buf[:size]
	return resp, nil
}

// Close closes the connection. Further sends fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
