package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
# wearable on the left USB port
SERIAL_PORT = /dev/ttyACM0
SERIAL_DRIVER=BUGST
SERIAL_SETTLE_MS=0
SMOOTHING_ALPHA=0.25
PITCH_THRESHOLD_DEG=12.5
ALERT_GENTLE_S=10
ALERT_WARNING_S=20
ALERT_URGENT_S=30
ALERT_CRITICAL_S=40
MQTT_BROKER=tcp://localhost:1883
DISPLAY_I2C_ADDR=0x3D
CSV_LOG_FILE=
`))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.SerialPort)
	assert.Equal(t, "bugst", cfg.SerialDriver)
	assert.Equal(t, 0, cfg.SerialSettleMs)
	assert.Equal(t, 0.25, cfg.SmoothingAlpha)
	assert.Equal(t, 12.5, cfg.PitchThresholdDeg)
	assert.Equal(t, 40, cfg.AlertCriticalS)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, uint16(0x3D), cfg.DisplayI2CAddr)
	assert.Empty(t, cfg.CSVLogFile)

	// untouched keys keep their defaults
	assert.Equal(t, 115200, cfg.SerialBaudRate)
	assert.Equal(t, "posture/state", cfg.TopicPosture)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no equals", "SERIAL_PORT\n", "invalid config line 1"},
		{"unknown key", "\n\nIMU_LEFT_SPI_DEVICE=/dev/spidev0.0\n", "config line 3: unknown config key"},
		{"bad int", "SERIAL_BAUD_RATE=fast\n", "invalid SERIAL_BAUD_RATE"},
		{"bad float", "SMOOTHING_ALPHA=half\n", "invalid SMOOTHING_ALPHA"},
		{"nan", "PITCH_THRESHOLD_DEG=NaN\n", "must be finite"},
		{"alpha range", "SMOOTHING_ALPHA=1\n", "SMOOTHING_ALPHA must be in (0, 1)"},
		{"driver", "SERIAL_DRIVER=pyserial\n", "SERIAL_DRIVER"},
		{"bands", "ALERT_WARNING_S=30\n", "strictly ascending"},
		{"gentle", "ALERT_GENTLE_S=0\n", "ALERT_GENTLE_S must be positive"},
		{"i2c addr", "DISPLAY_I2C_ADDR=0xZZ\n", "invalid DISPLAY_I2C_ADDR"},
		{"port", "WEB_SERVER_PORT=70000\n", "WEB_SERVER_PORT"},
		{"topics", "MQTT_BROKER=tcp://b:1883\nTOPIC_POSTURE=\n", "TOPIC_POSTURE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOrDefault(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "posture_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("WEB_SERVER_PORT=9000\n"), 0o644))
	cfg, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.WebServerPort)

	require.NoError(t, os.WriteFile(path, []byte("WEB_SERVER_PORT=x\n"), 0o644))
	_, err = LoadOrDefault(path)
	assert.Error(t, err)
}

func TestShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
