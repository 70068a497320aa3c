package pipeline

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/monitoring"
	"github.com/relabs-tech/posture_telemetry/internal/orientation"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/serialport"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

var t0 = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

type recordingSink struct {
	mu           sync.Mutex
	samples      []Snapshot
	calibrations []calibration.State
	diagnostics  []telemetry.DiagnosticLine
}

func (r *recordingSink) HandleSample(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recordingSink) HandleCalibration(s calibration.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calibrations = append(r.calibrations, s)
}

func (r *recordingSink) HandleDiagnostic(d telemetry.DiagnosticLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

type fixture struct {
	mgr    *serialport.Manager
	opener *serialport.MockOpener
	port   *serialport.TestablePort
	mon    *Monitor
	sink   *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	opener := serialport.NewMockOpener()
	port := opener.Register("mock:a")
	mgr, err := serialport.NewManager(opener.Open, serialport.PortOptions{})
	require.NoError(t, err)
	_, err = mgr.Open(context.Background(), "mock:a")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.Posture.PitchThresholdDeg = 15
	sink := &recordingSink{}
	mon, err := NewMonitor(mgr, cfg, sink)
	require.NoError(t, err)

	return &fixture{mgr: mgr, opener: opener, port: port, mon: mon, sink: sink}
}

func (f *fixture) feed(at time.Time, lines ...string) {
	for _, l := range lines {
		f.port.AddReadData([]byte(l + "\n"))
	}
	f.mon.Tick(at)
}

func TestMonitor_EndToEndScenario(t *testing.T) {
	f := newFixture(t)

	f.feed(t0, `{"pitch":0,"roll":0}`)
	for i := 1; i <= 5; i++ {
		f.feed(t0.Add(time.Duration(i)*time.Second), `{"pitch":20,"roll":0}`)
	}

	require.Len(t, f.sink.samples, 6)
	wantPitch := []float64{0, 10, 15, 17.5, 18.75, 19.375}
	wantSlouch := []bool{false, false, true, true, true, true}
	wantCum := []float64{0, 0, 0, 1, 2, 3}

	for i, s := range f.sink.samples {
		rec := s.Record()
		assert.InDelta(t, wantPitch[i], rec.Pitch, 1e-9, "sample %d", i)
		assert.Equal(t, 20.0*float64(min(i, 1)), rec.PitchRaw, "pitch_raw is unfiltered")
		assert.Equal(t, wantSlouch[i], rec.ForwardSlouch, "sample %d", i)
		assert.InDelta(t, wantCum[i], rec.CumulativeSlouchS, 1e-9, "sample %d", i)
		assert.Equal(t, "none", rec.AlertLevelName)
		assert.Equal(t, 15.0, rec.Threshold)
		assert.Equal(t, "mock:a", s.Endpoint)
	}

	last, ok := f.mon.Latest()
	require.True(t, ok)
	assert.Equal(t, f.sink.samples[5], last)
	assert.Equal(t, posture.BandSlouch, last.Band)
	if diff := cmp.Diff(orientation.ForwardVector(19.375, 0), last.Forward, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("forward vector mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(6), f.mon.Stats().Samples)
}

func TestMonitor_NoDataBeforeFirstSample(t *testing.T) {
	f := newFixture(t)
	_, ok := f.mon.Latest()
	assert.False(t, ok)

	f.feed(t0, `{"status":"initialized"}`, "garbage \x00\x01", "")
	_, ok = f.mon.Latest()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), f.mon.Stats().Diagnostics)
	assert.Equal(t, "initialized", f.sink.diagnostics[0].Status)
	assert.Empty(t, f.sink.samples)
}

func TestMonitor_CalibrationScenario(t *testing.T) {
	f := newFixture(t)

	f.feed(t0, `{"status":"calibrating","countdown_s":3}`)
	st := f.mon.Calibration()
	assert.Equal(t, calibration.Calibrating, st.Phase)
	assert.Equal(t, uint32(3), st.CountdownS)

	f.feed(t0.Add(3*time.Second), `{"status":"calibrated","pitch_offset":1.2,"roll_offset":-0.4}`)
	st = f.mon.Calibration()
	assert.Equal(t, calibration.Calibrated, st.Phase)
	assert.Equal(t, 1.2, st.PitchOffset)
	assert.Equal(t, -0.4, st.RollOffset)
	require.Len(t, f.sink.calibrations, 2)
	assert.Equal(t, uint64(0), f.mon.Stats().Samples, "calibration lines never reach the classifier")

	f.feed(t0.Add(4*time.Second), `{"pitch":3,"roll":1}`)
	last, ok := f.mon.Latest()
	require.True(t, ok)
	assert.Equal(t, calibration.Calibrated, last.Calibration.Phase)
}

func TestMonitor_SwitchResetsFilterKeepsPosture(t *testing.T) {
	f := newFixture(t)
	b := f.opener.Register("mock:b")

	f.feed(t0, `{"pitch":20,"roll":0}`)
	f.feed(t0.Add(time.Second), `{"pitch":20,"roll":0}`)
	f.feed(t0.Add(2*time.Second), `{"pitch":30,"roll":0}`)
	before, _ := f.mon.Latest()
	assert.Equal(t, 25.0, before.Sample.Pitch)
	assert.Equal(t, 2*time.Second, before.Posture.CumulativeSlouch)

	ctx, cancel := context.WithCancel(context.Background())
	f.mon.cfg.TickInterval = time.Hour
	done := make(chan error, 1)
	go func() { done <- f.mon.Run(ctx) }()

	s, err := f.mon.RequestSwitch(context.Background(), "mock:b")
	require.NoError(t, err)
	assert.Equal(t, "mock:b", s.Endpoint)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.False(t, f.mon.FilterState().Initialized)
	assert.True(t, f.port.IsClosed())
	assert.Equal(t, uint64(1), f.mon.Stats().Switches)
	assert.Equal(t, uint64(1), f.mon.Stats().Resets)

	b.AddReadData([]byte("{\"pitch\":40,\"roll\":0}\n"))
	f.mon.Tick(t0.Add(time.Hour))
	after, _ := f.mon.Latest()
	assert.Equal(t, 40.0, after.Sample.Pitch, "cold start after switch")
	assert.Equal(t, 2*time.Second, after.Posture.CumulativeSlouch, "no time elapses across a switch")
	assert.Equal(t, "mock:b", after.Endpoint)
}

func TestMonitor_NoMovementAcrossSwitch(t *testing.T) {
	f := newFixture(t)
	b := f.opener.Register("mock:b")

	f.feed(t0, `{"pitch":2,"roll":0}`)
	f.feed(t0.Add(time.Second), `{"pitch":2,"roll":0}`)

	_, err := f.mon.doSwitch(context.Background(), "mock:b")
	require.NoError(t, err)
	assert.Equal(t, "mock:b", f.mon.Endpoint())

	b.AddReadData([]byte("{\"pitch\":-30,\"roll\":12}\n"))
	f.mon.Tick(t0.Add(time.Minute))
	first, _ := f.mon.Latest()
	assert.Equal(t, -30.0, first.Sample.Pitch)
	assert.False(t, first.Posture.IsMoving, "new sensor is not compared with the old one")

	b.AddReadData([]byte("{\"pitch\":10,\"roll\":12}\n"))
	f.mon.Tick(t0.Add(time.Minute + time.Second))
	second, _ := f.mon.Latest()
	assert.True(t, second.Posture.IsMoving, "movement detection resumes")
}

func TestMonitor_SwitchFailureStaysDisconnected(t *testing.T) {
	f := newFixture(t)
	f.opener.Fail("/dev/ttyUSB9", errors.New("no such file or directory"))

	_, err := f.mon.doSwitch(context.Background(), "/dev/ttyUSB9")
	var ce *serialport.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.False(t, f.mgr.Connected())

	f.mon.Tick(t0)
	_, ok := f.mon.Latest()
	assert.False(t, ok)
}

func TestMonitor_RequestSwitchHonoursContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.mon.RequestSwitch(ctx, "mock:b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonitor_NonFiniteSamplesAreDiscarded(t *testing.T) {
	f := newFixture(t)
	f.feed(t0, `{"pitch":20,"roll":0}`)
	before, _ := f.mon.Latest()

	f.mon.Process(telemetry.PostureSample{Pitch: math.NaN(), Roll: 0}, t0.Add(time.Second))
	f.mon.Process(telemetry.PostureSample{Pitch: 1, Roll: math.Inf(1)}, t0.Add(time.Second))

	after, _ := f.mon.Latest()
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(2), f.mon.Stats().Discarded)
	assert.Equal(t, 20.0, f.mon.FilterState().SmoothedPitch)
}

func TestMonitor_ReplayIsDeterministic(t *testing.T) {
	lines := []string{
		`{"pitch":3,"roll":1}`, `{"pitch":18,"roll":-2}`, `{"status":"calibrating","countdown_s":2}`,
		`{"pitch":25,"roll":4}`, `not json`, `{"pitch":16,"roll":0,"pitch_raw":17}`,
	}
	run := func() []telemetry.SampleRecord {
		f := newFixture(t)
		for i, l := range lines {
			f.feed(t0.Add(time.Duration(i)*500*time.Millisecond), l)
		}
		var out []telemetry.SampleRecord
		for _, s := range f.sink.samples {
			out = append(out, s.Record())
		}
		return out
	}
	first, second := run(), run()
	require.Len(t, first, 4)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replay diverged (-first +second):\n%s", diff)
	}
}

func TestNewMonitor_Validation(t *testing.T) {
	mgr, err := serialport.NewManager(serialport.NewMockOpener().Open, serialport.PortOptions{})
	require.NoError(t, err)

	_, err = NewMonitor(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Alpha = 1
	_, err = NewMonitor(mgr, cfg)
	assert.ErrorIs(t, err, orientation.ErrInvalidAlpha)

	cfg = DefaultConfig()
	cfg.Posture.Bands.Urgent = cfg.Posture.Bands.Critical
	_, err = NewMonitor(mgr, cfg)
	assert.ErrorIs(t, err, posture.ErrNonMonotonicBands)

	cfg = DefaultConfig()
	cfg.TickInterval = 0
	m, err := NewMonitor(mgr, cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultTickInterval, m.Config().TickInterval)
}

func TestSnapshot_Record(t *testing.T) {
	s := Snapshot{
		At:        t0,
		Sample:    orientation.Smoothed{Pitch: 17, Roll: -2, PitchRaw: 18},
		Posture:   posture.State{AlertLevel: posture.AlertWarning, CumulativeSlouch: 150 * time.Second, ForwardSlouch: true, IsMoving: true},
		Threshold: 15,
	}
	assert.Equal(t, telemetry.SampleRecord{
		Timestamp:         t0.UnixMilli(),
		Pitch:             17,
		Roll:              -2,
		PitchRaw:          18,
		CumulativeSlouchS: 150,
		IsMoving:          true,
		AlertLevel:        2,
		AlertLevelName:    "warning",
		AlertActive:       true,
		Threshold:         15,
		ForwardSlouch:     true,
	}, s.Record())
}
