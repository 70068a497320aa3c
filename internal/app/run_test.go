package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_telemetry/internal/config"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/serialport"
)

func TestPipelineConfig_Defaults(t *testing.T) {
	got := PipelineConfig(config.Default())

	assert.Equal(t, 0.5, got.Alpha)
	assert.Equal(t, pipeline.DefaultTickInterval, got.TickInterval)
	assert.Equal(t, posture.DefaultConfig(), got.Posture)
}

func TestPipelineConfig_Overrides(t *testing.T) {
	cfg := config.Default()
	cfg.SmoothingAlpha = 0.2
	cfg.PitchThresholdDeg = 12
	cfg.AlertGentleS, cfg.AlertWarningS, cfg.AlertUrgentS, cfg.AlertCriticalS = 5, 10, 20, 40
	cfg.TickIntervalMs = 50

	got := PipelineConfig(cfg)
	assert.Equal(t, 0.2, got.Alpha)
	assert.Equal(t, 12.0, got.Posture.PitchThresholdDeg)
	assert.Equal(t, posture.Bands{
		Gentle: 5 * time.Second, Warning: 10 * time.Second,
		Urgent: 20 * time.Second, Critical: 40 * time.Second,
	}, got.Posture.Bands)
	assert.Equal(t, 50*time.Millisecond, got.TickInterval)

	_, mon, err := newPipeline(cfg)
	require.NoError(t, err)
	assert.Equal(t, got, mon.Config())
}

func TestPortOptions(t *testing.T) {
	cfg := config.Default()
	cfg.SerialDriver = "bugst"
	cfg.SerialBaudRate = 9600
	cfg.SerialSettleMs = 500

	assert.Equal(t, serialport.PortOptions{
		Driver:      serialport.DriverBugst,
		BaudRate:    9600,
		ReadTimeout: 100 * time.Millisecond,
		Settle:      500 * time.Millisecond,
	}, PortOptions(cfg))
}

func TestResolveEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.SerialPort = "/dev/ttyACM0"

	assert.Equal(t, "/dev/ttyACM0", ResolveEndpoint(cfg, ""))
	assert.Equal(t, "file:posture_log.jsonl", ResolveEndpoint(cfg, " file:posture_log.jsonl "))
}
