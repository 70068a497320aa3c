package telemetry

import "encoding/json"

// SampleRecord is the full posture record as it appears on the wire: the
// device's sample plus the classification fields. The pipeline publishes it
// to MQTT and the visualiser.
type SampleRecord struct {
	Timestamp         int64   `json:"timestamp,omitempty"` // unix milliseconds
	Pitch             float64 `json:"pitch"`
	Roll              float64 `json:"roll"`
	PitchRaw          float64 `json:"pitch_raw"`
	CumulativeSlouchS float64 `json:"cumulative_slouch_s"`
	IsMoving          bool    `json:"is_moving"`
	AlertLevel        int     `json:"alert_level"`
	AlertLevelName    string  `json:"alert_level_name"`
	AlertActive       bool    `json:"alert_active"`
	Threshold         float64 `json:"threshold"`
	ForwardSlouch     bool    `json:"forward_slouch"`
}

// statusRecord is the wire shape of calibration status lines.
type statusRecord struct {
	Status      string   `json:"status"`
	CountdownS  *uint32  `json:"countdown_s,omitempty"`
	PitchOffset *float64 `json:"pitch_offset,omitempty"`
	RollOffset  *float64 `json:"roll_offset,omitempty"`
}

// EncodeSample renders a posture sample as a device line (without the
// trailing newline).
func EncodeSample(s PostureSample) []byte {
	b, _ := json.Marshal(s)
	return b
}

// EncodeCalibration renders a calibration event as a device status line.
func EncodeCalibration(ev CalibrationEvent) []byte {
	rec := statusRecord{Status: ev.Phase.String()}
	switch ev.Phase {
	case PhaseCalibrating:
		c := ev.CountdownS
		rec.CountdownS = &c
	case PhaseComplete:
		p, r := ev.PitchOffset, ev.RollOffset
		rec.PitchOffset, rec.RollOffset = &p, &r
	}
	b, _ := json.Marshal(rec)
	return b
}
