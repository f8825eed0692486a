// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package remote

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/kestrel/pkg/motion"
	"github.com/Thermoquad/kestrel/pkg/telemetry"
)

// Client is a ground station connection to a vehicle
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// DialOptions configures Dial
type DialOptions struct {
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// Dial connects to a vehicle's control endpoint, e.g.
// ws://kestrel.local:8080/control
func Dial(ctx context.Context, url string, opts DialOptions) (*Client, error) {
	dialer := websocket.Dialer{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	header := http.Header{}
	if opts.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		header.Set("Authorization", "Basic "+auth)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("authentication failed (check username/password)")
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send transmits an event as a binary frame
func (c *Client) Send(ev motion.Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendJSON transmits an event as a JSON text frame
func (c *Client) SendJSON(ev motion.Event) error {
	data, err := json.Marshal(telemetry.Event{Name: ev.Kind.String(), Roll: ev.Roll, Pitch: ev.Pitch})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Message is one frame received from the vehicle. Exactly one of Snapshot
// and Reply is set.
type Message struct {
	Snapshot *telemetry.Snapshot
	Reply    *Reply
}

// Next blocks until the vehicle sends a snapshot or an event reply
func (c *Client) Next() (Message, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		switch messageType {
		case websocket.BinaryMessage:
			snap, err := telemetry.DecodeSnapshot(data)
			if err != nil {
				return Message{}, err
			}
			return Message{Snapshot: &snap}, nil
		case websocket.TextMessage:
			var r Reply
			if err := json.Unmarshal(data, &r); err != nil {
				return Message{}, fmt.Errorf("invalid reply: %w", err)
			}
			return Message{Reply: &r}, nil
		}
	}
}

// Close closes the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
