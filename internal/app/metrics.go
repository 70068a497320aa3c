package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

const metricsNamespace = "posture"

// MetricsSink exports the latest posture and the pipeline counters for
// Prometheus. It owns its registry so several can coexist in tests.
type MetricsSink struct {
	registry *prometheus.Registry

	pitch            prometheus.Gauge
	roll             prometheus.Gauge
	cumulativeSlouch prometheus.Gauge
	alertLevel       prometheus.Gauge
	forwardSlouch    prometheus.Gauge
	moving           prometheus.Gauge
	calibrated       prometheus.Gauge
	alertsRaised     *prometheus.CounterVec

	lastLevel posture.AlertLevel
}

// NewMetricsSink registers the posture gauges and, when stats is non-nil,
// counters mirroring pipeline.Stats.
func NewMetricsSink(stats func() pipeline.Stats) *MetricsSink {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		})
	}

	m := &MetricsSink{
		registry:         prometheus.NewRegistry(),
		pitch:            gauge("pitch_degrees", "Smoothed pitch of the latest sample."),
		roll:             gauge("roll_degrees", "Smoothed roll of the latest sample."),
		cumulativeSlouch: gauge("cumulative_slouch_seconds", "Length of the current continuous slouch."),
		alertLevel:       gauge("alert_level", "Alert level (0 none, 1 gentle, 2 warning, 3 urgent, 4 critical)."),
		forwardSlouch:    gauge("forward_slouch", "1 while the slouch predicate holds."),
		moving:           gauge("moving", "1 while the head is moving."),
		calibrated:       gauge("calibrated", "1 once the device has reported calibration offsets."),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_raised_total",
			Help:      "Escalations into each alert level.",
		}, []string{"level"}),
	}
	m.registry.MustRegister(
		m.pitch, m.roll, m.cumulativeSlouch, m.alertLevel,
		m.forwardSlouch, m.moving, m.calibrated, m.alertsRaised,
	)

	if stats != nil {
		counter := func(name, help string, field func(pipeline.Stats) uint64) {
			m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      name,
				Help:      help,
			}, func() float64 { return float64(field(stats())) }))
		}
		counter("samples_total", "Accepted posture samples.", func(s pipeline.Stats) uint64 { return s.Samples })
		counter("calibrations_total", "Calibration status lines.", func(s pipeline.Stats) uint64 { return s.Calibrations })
		counter("diagnostics_total", "Non-telemetry lines.", func(s pipeline.Stats) uint64 { return s.Diagnostics })
		counter("discarded_total", "Samples rejected by the classifier.", func(s pipeline.Stats) uint64 { return s.Discarded })
		counter("switches_total", "Transport switch attempts.", func(s pipeline.Stats) uint64 { return s.Switches })
		counter("resets_total", "Filter resets caused by a switch.", func(s pipeline.Stats) uint64 { return s.Resets })
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsSink) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *MetricsSink) HandleSample(s pipeline.Snapshot) {
	st := s.Posture
	m.pitch.Set(s.Sample.Pitch)
	m.roll.Set(s.Sample.Roll)
	m.cumulativeSlouch.Set(st.CumulativeSlouchSeconds())
	m.alertLevel.Set(float64(st.AlertLevel))
	m.forwardSlouch.Set(boolGauge(st.ForwardSlouch))
	m.moving.Set(boolGauge(st.IsMoving))

	if st.AlertLevel > m.lastLevel {
		m.alertsRaised.WithLabelValues(st.AlertLevel.String()).Inc()
	}
	m.lastLevel = st.AlertLevel
}

func (m *MetricsSink) HandleCalibration(st calibration.State) {
	m.calibrated.Set(boolGauge(st.Phase == calibration.Calibrated))
}

func (m *MetricsSink) HandleDiagnostic(telemetry.DiagnosticLine) {}
