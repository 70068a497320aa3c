package pipeline

import (
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/orientation"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

// Snapshot is everything the presentation layer needs after one accepted
// sample. It is a value; sinks may keep it.
type Snapshot struct {
	At          time.Time
	Endpoint    string
	Sample      orientation.Smoothed
	Posture     posture.State
	Calibration calibration.State
	Threshold   float64
	Rotation    orientation.Rotation
	Forward     orientation.Vector3
	Band        posture.Band
	Zone        posture.Zone
}

// Record is the wire form of the snapshot.
func (s Snapshot) Record() telemetry.SampleRecord {
	return telemetry.SampleRecord{
		Timestamp:         s.At.UnixMilli(),
		Pitch:             s.Sample.Pitch,
		Roll:              s.Sample.Roll,
		PitchRaw:          s.Sample.PitchRaw,
		CumulativeSlouchS: s.Posture.CumulativeSlouchSeconds(),
		IsMoving:          s.Posture.IsMoving,
		AlertLevel:        int(s.Posture.AlertLevel),
		AlertLevelName:    s.Posture.AlertLevel.String(),
		AlertActive:       s.Posture.AlertActive(),
		Threshold:         s.Threshold,
		ForwardSlouch:     s.Posture.ForwardSlouch,
	}
}

// Sink consumes pipeline output. Methods are called from the tick goroutine,
// one at a time, in arrival order.
type Sink interface {
	HandleSample(Snapshot)
	HandleCalibration(calibration.State)
	HandleDiagnostic(telemetry.DiagnosticLine)
}

// Stats counts what the pipeline has seen since it started.
type Stats struct {
	Samples      uint64 `json:"samples"`
	Calibrations uint64 `json:"calibrations"`
	Diagnostics  uint64 `json:"diagnostics"`
	Discarded    uint64 `json:"discarded"`
	Switches     uint64 `json:"switches"`
	Resets       uint64 `json:"resets"`
}
