// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/monitoring"
	"github.com/relabs-tech/posture_telemetry/internal/orientation"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

// MockSampleInterval is how often the mock device emits a posture sample.
const MockSampleInterval = 100 * time.Millisecond

var errPortClosed = errors.New("serial port closed")

type scriptedLine struct {
	after time.Duration
	line  []byte
}

// SourceDevice behaves like a wearable streaming over serial, backed by an
// orientation.Source: an optional scripted boot sequence, then a posture
// sample every MockSampleInterval. Lines are produced lazily from the clock
// so reads never block.
type SourceDevice struct {
	mu        sync.Mutex
	now       func() time.Time
	start     time.Time
	script    []scriptedLine
	source    orientation.Source
	rawOffset float64
	nextAt    time.Duration
	pending   bytes.Buffer
	closed    bool
}

// NewMockDevice starts a simulated wearable at now(): a boot banner, a three
// second calibration countdown, then samples from orientation.MockSource.
func NewMockDevice(now func() time.Time) *SourceDevice {
	boot := []scriptedLine{
		{0, []byte(`{"status":"initialized"}`)},
		{0, telemetry.EncodeCalibration(telemetry.CalibrationEvent{Phase: telemetry.PhaseCalibrating, CountdownS: 3})},
		{time.Second, telemetry.EncodeCalibration(telemetry.CalibrationEvent{Phase: telemetry.PhaseCalibrating, CountdownS: 2})},
		{2 * time.Second, telemetry.EncodeCalibration(telemetry.CalibrationEvent{Phase: telemetry.PhaseCalibrating, CountdownS: 1})},
		{3 * time.Second, telemetry.EncodeCalibration(telemetry.CalibrationEvent{Phase: telemetry.PhaseComplete, PitchOffset: 1.2, RollOffset: -0.4})},
	}
	return &SourceDevice{
		now:       now,
		start:     now(),
		script:    boot,
		source:    orientation.NewMockSourceAt(now),
		rawOffset: 1.2,
		nextAt:    3*time.Second + MockSampleInterval,
	}
}

// NewIMUDevice streams src as a wearable with no on-device calibration, so
// pitch_raw equals pitch.
func NewIMUDevice(src orientation.Source, now func() time.Time) *SourceDevice {
	return &SourceDevice{
		now:    now,
		start:  now(),
		script: []scriptedLine{{0, []byte(`{"status":"initialized"}`)}},
		source: src,
		nextAt: MockSampleInterval,
	}
}

func (m *SourceDevice) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errPortClosed
	}
	m.generate()
	if m.pending.Len() == 0 {
		return 0, nil
	}
	return m.pending.Read(p)
}

// generate appends every line due by now.
func (m *SourceDevice) generate() {
	elapsed := m.now().Sub(m.start)

	for len(m.script) > 0 && m.script[0].after <= elapsed {
		m.pending.Write(m.script[0].line)
		m.pending.WriteByte('\n')
		m.script = m.script[1:]
	}

	// Only the latest pose matters after a long gap between reads.
	if m.nextAt <= elapsed {
		missed := (elapsed - m.nextAt) / MockSampleInterval
		m.nextAt += (missed + 1) * MockSampleInterval

		pose, err := m.source.Next()
		if err != nil {
			monitoring.Logf("serialport: orientation source: %v", err)
			return
		}
		m.pending.Write(telemetry.EncodeSample(telemetry.PostureSample{
			Pitch:    pose.Pitch,
			Roll:     pose.Roll,
			PitchRaw: pose.Pitch + m.rawOffset,
		}))
		m.pending.WriteByte('\n')
	}
}

// Write accepts and discards commands.
func (m *SourceDevice) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errPortClosed
	}
	return len(p), nil
}

func (m *SourceDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
