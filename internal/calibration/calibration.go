// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration tracks the sensor's calibration lifecycle as reported
// by its status lines. Offsets are applied on the device; the state here is
// kept for display and audit.
package calibration

import (
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

// Phase is the calibration lifecycle phase.
type Phase int

const (
	Idle Phase = iota
	Calibrating
	Calibrated
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case Calibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// State is the current calibration state. CountdownS is set while
// Calibrating; the offsets are set once Calibrated.
type State struct {
	Phase       Phase     `json:"-"`
	PhaseName   string    `json:"phase"`
	CountdownS  uint32    `json:"countdown_s"`
	PitchOffset float64   `json:"pitch_offset"`
	RollOffset  float64   `json:"roll_offset"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tracker owns the calibration State. It is not safe for concurrent use; the
// pipeline tick goroutine is its only writer.
type Tracker struct {
	state State
}

// NewTracker returns a tracker in the Idle phase.
func NewTracker() *Tracker {
	return &Tracker{state: State{Phase: Idle, PhaseName: Idle.String()}}
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	return t.state
}

// Apply advances the state machine with a calibration event received at the
// given time and returns the new state. Every event is a valid transition:
// a calibrating event restarts calibration from any phase, and a completion
// event moves to Calibrated whether or not a countdown was seen.
func (t *Tracker) Apply(ev telemetry.CalibrationEvent, at time.Time) State {
	switch ev.Phase {
	case telemetry.PhaseCalibrating:
		t.state = State{
			Phase:      Calibrating,
			CountdownS: ev.CountdownS,
			UpdatedAt:  at,
		}
	case telemetry.PhaseComplete:
		t.state = State{
			Phase:       Calibrated,
			PitchOffset: ev.PitchOffset,
			RollOffset:  ev.RollOffset,
			UpdatedAt:   at,
		}
	default:
		return t.state
	}
	t.state.PhaseName = t.state.Phase.String()
	return t.state
}
