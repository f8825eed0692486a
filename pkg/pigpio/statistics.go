// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pigpio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks daemon exchanges and fault counts
type Statistics struct {
	mu sync.Mutex
	Counters
}

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalExchanges uint64
	Succeeded      uint64
	SendErrors     uint64
	ReceiveErrors  uint64
	ProtocolErrors uint64
	CommandErrors  uint64
	OtherErrors    uint64
	ExtensionBytes uint64

	// Latency
	LastLatency time.Duration
	MaxLatency  time.Duration

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// Record accounts for one exchange
func (s *Statistics) Record(err error, extBytes int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalExchanges++
	s.LastLatency = latency
	if latency > s.MaxLatency {
		s.MaxLatency = latency
	}
	s.LastUpdateTime = time.Now()

	switch {
	case err == nil:
		s.Succeeded++
		s.ExtensionBytes += uint64(extBytes)
	case errors.Is(err, ErrSend):
		s.SendErrors++
	case errors.Is(err, ErrReceive):
		s.ReceiveErrors++
	case errors.Is(err, ErrProtocol):
		s.ProtocolErrors++
	case errors.Is(err, ErrCommand):
		s.CommandErrors++
	default:
		s.OtherErrors++
	}
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRatesLocked()
}

func (s *Statistics) calculateRatesLocked() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.TotalExchanges) / elapsed
		s.ErrorRate = float64(s.Counters.Errors()) / elapsed
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRatesLocked()
	return s.Counters
}

// Errors returns the total number of failed exchanges
func (c Counters) Errors() uint64 {
	return c.SendErrors + c.ReceiveErrors + c.ProtocolErrors + c.CommandErrors + c.OtherErrors
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var okPercent float64
	if snap.TotalExchanges > 0 {
		okPercent = float64(snap.Succeeded) * 100.0 / float64(snap.TotalExchanges)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Daemon Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Exchanges:       %8d\n", snap.TotalExchanges)
	result += fmt.Sprintf("Succeeded:       %8d (%.1f%%)\n", snap.Succeeded, okPercent)

	if snap.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", snap.SendErrors)
	}
	if snap.ReceiveErrors > 0 {
		result += fmt.Sprintf("Receive Errors:  %8d\n", snap.ReceiveErrors)
	}
	if snap.ProtocolErrors > 0 {
		result += fmt.Sprintf("Protocol Errors: %8d\n", snap.ProtocolErrors)
	}
	if snap.CommandErrors > 0 {
		result += fmt.Sprintf("Command Errors:  %8d\n", snap.CommandErrors)
	}
	if snap.ExtensionBytes > 0 {
		result += fmt.Sprintf("Extension Bytes: %8d\n", snap.ExtensionBytes)
	}

	result += fmt.Sprintf("Max Latency:     %8s\n", snap.MaxLatency.Round(time.Microsecond))
	result += fmt.Sprintf("Exchange Rate:   %8.1f cmds/sec\n", snap.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "=====================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Counters = Counters{StartTime: now, LastUpdateTime: now}
}
