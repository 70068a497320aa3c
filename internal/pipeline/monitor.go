// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline drives the posture pipeline: every tick it drains the
// transport, decodes lines and routes each frame to calibration tracking or
// to smoothing and classification, then hands the results to the sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/monitoring"
	"github.com/relabs-tech/posture_telemetry/internal/orientation"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/serialport"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

// DefaultTickInterval is how often the transport is drained.
const DefaultTickInterval = 100 * time.Millisecond

// Transport supplies telemetry lines and can be pointed at another endpoint.
// *serialport.Manager implements it.
type Transport interface {
	ReadAvailable() iter.Seq[[]byte]
	Switch(ctx context.Context, endpoint string) (*serialport.Session, error)
	Endpoint() string
}

// resetRegistry is implemented by transports that reset state on switch.
type resetRegistry interface {
	AddResetter(serialport.Resetter)
}

// Config holds the pipeline tuning.
type Config struct {
	Alpha        float64
	Posture      posture.Config
	TickInterval time.Duration
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		Alpha:        orientation.DefaultAlpha,
		Posture:      posture.DefaultConfig(),
		TickInterval: DefaultTickInterval,
	}
}

type switchRequest struct {
	endpoint string
	reply    chan switchResult
}

type switchResult struct {
	session *serialport.Session
	err     error
}

// Monitor owns the filter, classifier and calibration state. Only the
// goroutine running Run (or calling Tick in tests) mutates them; everything
// else reads published copies.
type Monitor struct {
	transport  Transport
	cfg        Config
	smoother   *orientation.Smoother
	classifier *posture.Classifier
	calib      *calibration.Tracker
	sinks      []Sink
	switches   chan switchRequest
	now        func() time.Time

	// tick goroutine state
	posture  posture.State
	lastAt   time.Time
	haveLast bool
	// rebased is set by Reset until the next accepted sample; that sample
	// has no comparable predecessor for movement.
	rebased bool

	mu       sync.RWMutex
	latest   Snapshot
	haveData bool
	calState calibration.State
	stats    Stats
}

// NewMonitor validates cfg and builds a monitor reading from t.
func NewMonitor(t Transport, cfg Config, sinks ...Sink) (*Monitor, error) {
	if t == nil {
		return nil, errors.New("pipeline: nil transport")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	smoother, err := orientation.NewSmoother(cfg.Alpha)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	classifier, err := posture.NewClassifier(cfg.Posture)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	m := &Monitor{
		transport:  t,
		cfg:        cfg,
		smoother:   smoother,
		classifier: classifier,
		calib:      calibration.NewTracker(),
		sinks:      sinks,
		switches:   make(chan switchRequest),
		now:        time.Now,
	}
	m.calState = m.calib.State()
	if reg, ok := t.(resetRegistry); ok {
		reg.AddResetter(m)
	}
	return m, nil
}

// AddSink registers another consumer. Call it before Run.
func (m *Monitor) AddSink(s Sink) {
	m.sinks = append(m.sinks, s)
}

// Config returns the monitor's tuning.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Endpoint is the transport's current endpoint, or "" while disconnected.
func (m *Monitor) Endpoint() string {
	return m.transport.Endpoint()
}

// Run drives the pipeline until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-m.switches:
			s, err := m.doSwitch(ctx, req.endpoint)
			req.reply <- switchResult{session: s, err: err}
		case <-ticker.C:
			m.Tick(m.now())
		}
	}
}

// RequestSwitch asks the running pipeline to move to another endpoint and
// waits for the outcome. The switch itself runs on the tick goroutine.
func (m *Monitor) RequestSwitch(ctx context.Context, endpoint string) (*serialport.Session, error) {
	req := switchRequest{endpoint: endpoint, reply: make(chan switchResult, 1)}
	select {
	case m.switches <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.session, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Monitor) doSwitch(ctx context.Context, endpoint string) (*serialport.Session, error) {
	s, err := m.transport.Switch(ctx, endpoint)
	m.mu.Lock()
	m.stats.Switches++
	m.mu.Unlock()
	if err != nil {
		monitoring.Logf("pipeline: switch to %s failed: %v", endpoint, err)
	}
	return s, err
}

// Reset clears the smoothing history and the inter-sample clock so the next
// sample after a transport change is a cold start with no elapsed time.
// Posture and calibration state are kept, but the first sample from the new
// endpoint is never reported as movement.
func (m *Monitor) Reset() {
	m.smoother.Reset()
	m.haveLast = false
	m.lastAt = time.Time{}
	m.rebased = true
	m.mu.Lock()
	m.stats.Resets++
	m.mu.Unlock()
}

// Tick drains whatever the transport has and processes each line as
// received at the given time.
func (m *Monitor) Tick(at time.Time) {
	for line := range m.transport.ReadAvailable() {
		frame, ok := telemetry.Decode(line)
		if !ok {
			continue
		}
		m.Process(frame, at)
	}
}

// Process routes one decoded frame.
func (m *Monitor) Process(frame telemetry.Frame, at time.Time) {
	switch f := frame.(type) {
	case telemetry.PostureSample:
		m.processSample(f, at)
	case telemetry.CalibrationEvent:
		st := m.calib.Apply(f, at)
		m.mu.Lock()
		m.calState = st
		m.latest.Calibration = st
		m.stats.Calibrations++
		m.mu.Unlock()
		for _, s := range m.sinks {
			s.HandleCalibration(st)
		}
	case telemetry.DiagnosticLine:
		m.mu.Lock()
		m.stats.Diagnostics++
		m.mu.Unlock()
		for _, s := range m.sinks {
			s.HandleDiagnostic(f)
		}
	}
}

func (m *Monitor) processSample(f telemetry.PostureSample, at time.Time) {
	if !finite(f.Pitch) || !finite(f.Roll) {
		m.discard(posture.ErrNonFinite)
		return
	}

	sm := m.smoother.Apply(f)

	var dt time.Duration
	if m.haveLast {
		dt = at.Sub(m.lastAt)
	}
	st, err := m.classifier.Classify(sm.Pitch, sm.Roll, m.posture, dt, at)
	if err != nil {
		m.discard(err)
		return
	}
	if m.rebased {
		st.IsMoving = false
		m.rebased = false
	}
	m.posture = st
	m.lastAt = at
	m.haveLast = true

	threshold := m.cfg.Posture.PitchThresholdDeg
	rot := orientation.Rotate(sm.Pitch, sm.Roll)
	snap := Snapshot{
		At:        at,
		Endpoint:  m.transport.Endpoint(),
		Sample:    sm,
		Posture:   st,
		Threshold: threshold,
		Rotation:  rot,
		Forward:   rot.Apply(orientation.Forward),
		Band:      posture.BandFor(sm.Pitch, threshold),
		Zone:      posture.ZoneFor(sm.Pitch, sm.Roll, threshold),
	}

	m.mu.Lock()
	snap.Calibration = m.calState
	m.latest = snap
	m.haveData = true
	m.stats.Samples++
	m.mu.Unlock()

	for _, s := range m.sinks {
		s.HandleSample(snap)
	}
}

func (m *Monitor) discard(err error) {
	m.mu.Lock()
	m.stats.Discarded++
	m.mu.Unlock()
	monitoring.Logf("pipeline: discarded sample: %v", err)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Latest returns the most recent snapshot and whether any sample has been
// processed yet.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.haveData
}

// Calibration returns the current calibration state.
func (m *Monitor) Calibration() calibration.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calState
}

// Stats returns the running counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// FilterState exposes the smoothing history. Tick goroutine only.
func (m *Monitor) FilterState() orientation.FilterState {
	return m.smoother.State()
}
