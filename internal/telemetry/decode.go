// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
)

const (
	StatusInitialized = "initialized"
	StatusCalibrating = "calibrating"
	StatusCalibrated  = "calibrated"
)

// Decode turns one line from the sensor into a Frame. The boolean is false
// when the line is blank and no frame should be emitted.
//
// Decode never fails: anything that is not a posture sample or a calibration
// status comes back as a DiagnosticLine. Invalid UTF-8 is replaced rather
// than rejected.
func Decode(line []byte) (Frame, bool) {
	text := string(bytes.TrimSpace(bytes.ToValidUTF8(line, []byte("\uFFFD"))))
	if text == "" {
		return nil, false
	}
	diag := DiagnosticLine{Text: text}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return diag, true
	}

	if raw, ok := fields["status"]; ok {
		var status string
		if err := json.Unmarshal(raw, &status); err != nil || isNull(raw) {
			return diag, true
		}
		switch status {
		case StatusCalibrating:
			countdown, ok := optionalCount(fields, "countdown_s")
			if !ok {
				return diag, true
			}
			return CalibrationEvent{Phase: PhaseCalibrating, CountdownS: countdown}, true
		case StatusCalibrated:
			pitchOff, ok1 := optionalNumber(fields, "pitch_offset")
			rollOff, ok2 := optionalNumber(fields, "roll_offset")
			if !ok1 || !ok2 {
				return diag, true
			}
			return CalibrationEvent{Phase: PhaseComplete, PitchOffset: pitchOff, RollOffset: rollOff}, true
		default:
			diag.Status = status
			return diag, true
		}
	}

	pitchRaw, hasPitch := fields["pitch"]
	rollRaw, hasRoll := fields["roll"]
	if !hasPitch || !hasRoll {
		return diag, true
	}
	pitch, ok1 := number(pitchRaw)
	roll, ok2 := number(rollRaw)
	if !ok1 || !ok2 {
		return diag, true
	}
	raw, ok := optionalNumber(fields, "pitch_raw")
	if !ok {
		return diag, true
	}
	if _, present := fields["pitch_raw"]; !present {
		raw = pitch
	}
	return PostureSample{Pitch: pitch, Roll: roll, PitchRaw: raw}, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// number decodes a finite JSON number. Strings, booleans and null are not
// numbers.
func number(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// optionalNumber returns 0 for a missing key and false for a key holding
// something other than a number.
func optionalNumber(fields map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, true
	}
	return number(raw)
}

func optionalCount(fields map[string]json.RawMessage, key string) (uint32, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, true
	}
	v, ok := number(raw)
	if !ok || v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
		return 0, false
	}
	return uint32(v), true
}
