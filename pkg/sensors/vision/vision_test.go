// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vision

import (
	"testing"
	"time"
)

// message is a minimal mqtt.Message
type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 0 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

func TestLargest(t *testing.T) {
	tests := []struct {
		name  string
		boxes []Box
		want  Box
		ok    bool
	}{
		{"empty", nil, Box{}, false},
		{"single", []Box{{X: 1, Y: 2, Width: 3, Height: 4}}, Box{X: 1, Y: 2, Width: 3, Height: 4}, true},
		{
			name:  "largest area",
			boxes: []Box{{Width: 2, Height: 2}, {X: 5, Width: 3, Height: 3}, {Width: 1, Height: 8}},
			want:  Box{X: 5, Width: 3, Height: 3},
			ok:    true,
		},
		{
			name:  "tie goes to first seen",
			boxes: []Box{{X: 1, Width: 4, Height: 2}, {X: 2, Width: 2, Height: 4}, {X: 3, Width: 8, Height: 1}},
			want:  Box{X: 1, Width: 4, Height: 2},
			ok:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Largest(tt.boxes)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Largest = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBox_Center(t *testing.T) {
	x, y := Box{X: 100, Y: 50, Width: 40, Height: 20}.Center()
	if x != 120 || y != 60 {
		t.Errorf("Center = (%v, %v), want (120, 60)", x, y)
	}
}

func TestFeed_HandleMessage(t *testing.T) {
	f := NewFeed(time.Second, nil)
	if _, ok := f.LargestTarget(); ok {
		t.Fatal("empty feed reported a target")
	}

	f.HandleMessage(nil, message{
		topic:   "kestrel/vision",
		payload: []byte(`{"boxes":[{"x":10,"y":10,"width":5,"height":5},{"x":300,"y":200,"width":40,"height":30}]}`),
	})
	got, ok := f.LargestTarget()
	if !ok || got.X != 300 || got.Width != 40 {
		t.Errorf("LargestTarget = %+v, %v", got, ok)
	}

	// Malformed payloads leave the previous set in place
	f.HandleMessage(nil, message{topic: "kestrel/vision", payload: []byte(`{"boxes":`)})
	if got2, ok := f.LargestTarget(); !ok || got2 != got {
		t.Errorf("malformed message replaced the detections: %+v", got2)
	}

	// An empty set means nothing is in view
	f.HandleMessage(nil, message{topic: "kestrel/vision", payload: []byte(`{"boxes":[]}`)})
	if _, ok := f.LargestTarget(); ok {
		t.Error("target reported after empty detection set")
	}
}

func TestFeed_Stale(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(200*time.Millisecond, nil)
	f.now = func() time.Time { return clock }

	f.Update([]Box{{Width: 10, Height: 10}})
	clock = clock.Add(150 * time.Millisecond)
	if _, ok := f.LargestTarget(); !ok {
		t.Error("fresh detection rejected")
	}
	clock = clock.Add(100 * time.Millisecond)
	if _, ok := f.LargestTarget(); ok {
		t.Error("stale detection accepted")
	}
}

func TestStatic(t *testing.T) {
	if _, ok := (Static{}).LargestTarget(); ok {
		t.Error("empty Static reported a target")
	}
	b := Box{X: 1, Y: 2, Width: 3, Height: 4}
	if got, ok := (Static{Target: &b}).LargestTarget(); !ok || got != b {
		t.Errorf("Static = %+v, %v", got, ok)
	}
}
