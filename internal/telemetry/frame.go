// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

// Frame is one decoded line from the sensor stream. It is one of
// PostureSample, CalibrationEvent or DiagnosticLine.
type Frame interface {
	isFrame()
}

// PostureSample carries calibrated pitch/roll and the uncalibrated pitch,
// all in degrees.
type PostureSample struct {
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	PitchRaw float64 `json:"pitch_raw"`
}

// CalibrationPhase is the phase reported by a calibration status line.
type CalibrationPhase int

const (
	PhaseCalibrating CalibrationPhase = iota
	PhaseComplete
)

func (p CalibrationPhase) String() string {
	switch p {
	case PhaseCalibrating:
		return "calibrating"
	case PhaseComplete:
		return "calibrated"
	default:
		return "unknown"
	}
}

// CalibrationEvent reports calibration progress. CountdownS is only
// meaningful while calibrating, the offsets only once complete.
type CalibrationEvent struct {
	Phase       CalibrationPhase
	CountdownS  uint32
	PitchOffset float64
	RollOffset  float64
}

// DiagnosticLine is any non-empty line that is not telemetry: firmware debug
// output, partial JSON, or an unrecognised status message.
type DiagnosticLine struct {
	Text string
	// Status holds the "status" value of a well-formed status line that is
	// not a calibration phase (for example "initialized").
	Status string
}

func (PostureSample) isFrame()    {}
func (CalibrationEvent) isFrame() {}
func (DiagnosticLine) isFrame()   {}
