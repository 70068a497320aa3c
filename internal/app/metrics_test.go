package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
)

func TestMetricsSink_Gauges(t *testing.T) {
	m := NewMetricsSink(nil)

	m.HandleSample(snapshot(17.5, -2.25, posture.AlertWarning, 125*time.Second))
	assert.Equal(t, 17.5, testutil.ToFloat64(m.pitch))
	assert.Equal(t, -2.25, testutil.ToFloat64(m.roll))
	assert.Equal(t, 125.0, testutil.ToFloat64(m.cumulativeSlouch))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertLevel))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forwardSlouch))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.moving))

	m.HandleCalibration(calibration.State{Phase: calibration.Calibrating})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.calibrated))
	m.HandleCalibration(calibration.State{Phase: calibration.Calibrated})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calibrated))
}

func TestMetricsSink_AlertEscalations(t *testing.T) {
	m := NewMetricsSink(nil)

	for _, level := range []posture.AlertLevel{
		posture.AlertNone, posture.AlertGentle, posture.AlertGentle,
		posture.AlertWarning, posture.AlertNone, posture.AlertGentle,
	} {
		m.HandleSample(snapshot(20, 0, level, 0))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsRaised.WithLabelValues("gentle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsRaised.WithLabelValues("warning")))
}

func TestMetricsSink_ServesPipelineStats(t *testing.T) {
	stats := pipeline.Stats{Samples: 42, Discarded: 3, Switches: 1}
	m := NewMetricsSink(func() pipeline.Stats { return stats })
	m.HandleSample(snapshot(5, 0, posture.AlertNone, 0))

	s, _ := newTestWebServer(t)
	s.SetMetricsHandler(m.Handler())
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "posture_pipeline_samples_total 42")
	assert.Contains(t, body, "posture_pipeline_discarded_total 3")
	assert.Contains(t, body, "posture_pitch_degrees 5")
}

func TestWebServer_NoMetricsByDefault(t *testing.T) {
	s, _ := newTestWebServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
