// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flight

import (
	"time"

	"github.com/Thermoquad/kestrel/pkg/telemetry"
)

// Snapshot captures the current flight state
func (v *Vehicle) Snapshot(now time.Time) telemetry.Snapshot {
	alt, altOK := v.gov.Altitude()
	sp := v.gov.Setpoints()
	angles := v.quad.Angles()

	snap := telemetry.Snapshot{
		Time:           now.Sub(v.start).Milliseconds(),
		State:          v.gov.State().String(),
		Altitude:       alt,
		AltitudeValid:  altOK,
		TargetAltitude: v.gov.TargetAltitude(),
		SetRoll:        sp.Roll,
		SetPitch:       sp.Pitch,
		SetYaw:         sp.Yaw,
		Base:           sp.Base,
		Roll:           angles.Roll,
		Pitch:          angles.Pitch,
		Yaw:            angles.Yaw,
		Thrusts:        v.quad.Thrusts(),
		Safe:           v.flag.OK(),
		Fault:          v.flag.Reason(),
	}
	if v.parts.Stats != nil {
		c := v.parts.Stats.Snapshot()
		snap.Exchanges = c.TotalExchanges
		snap.DaemonErrors = c.Errors()
	}
	return snap
}

func (v *Vehicle) publish(now time.Time) {
	v.lastPublish = now
	v.published = true
	if len(v.parts.Sinks) == 0 {
		return
	}
	snap := v.Snapshot(now)
	for _, sink := range v.parts.Sinks {
		if err := sink.Publish(snap); err != nil {
			v.logger.Debug("telemetry publish failed", "error", err)
		}
	}
}
