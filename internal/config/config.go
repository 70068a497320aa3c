package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultPath is where the commands look for the configuration file.
const DefaultPath = "posture_config.txt"

// Config holds all application configuration values.
type Config struct {
	// Serial
	SerialPort          string // "" or "auto" means detect
	SerialBaudRate      int
	SerialDriver        string // "jacobsa" or "bugst"
	SerialSettleMs      int
	SerialReadTimeoutMs int

	// Filter / classifier
	SmoothingAlpha    float64
	PitchThresholdDeg float64
	MotionNoiseDeg    float64

	// Alert bands (seconds of continuous slouch)
	AlertGentleS   int
	AlertWarningS  int
	AlertUrgentS   int
	AlertCriticalS int

	// Timing
	TickIntervalMs int // milliseconds

	// Logging
	CSVLogFile           string // "" disables the CSV log
	DiagnosticBufferSize int

	// MQTT
	MQTTBroker       string // "" disables publishing
	MQTTClientID     string
	TopicPosture     string
	TopicCalibration string

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus  string
	DisplayI2CAddr uint16
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		SerialPort:           "auto",
		SerialBaudRate:       115200,
		SerialDriver:         "jacobsa",
		SerialSettleMs:       2000,
		SerialReadTimeoutMs:  100,
		SmoothingAlpha:       0.5,
		PitchThresholdDeg:    15,
		MotionNoiseDeg:       1,
		AlertGentleS:         30,
		AlertWarningS:        120,
		AlertUrgentS:         300,
		AlertCriticalS:       600,
		TickIntervalMs:       100,
		CSVLogFile:           "posture_log.csv",
		DiagnosticBufferSize: 200,
		MQTTBroker:           "",
		MQTTClientID:         "posture-monitor",
		TopicPosture:         "posture/state",
		TopicCalibration:     "posture/calibration",
		WebServerPort:        8080,
		DisplayI2CBus:        "",
		DisplayI2CAddr:       0x3C,
	}
}

// Load reads the configuration file on top of the defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse reads KEY=VALUE lines on top of the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q: must be finite", key, value)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)
	case "SERIAL_DRIVER":
		c.SerialDriver = strings.ToLower(value)
	case "SERIAL_SETTLE_MS":
		c.SerialSettleMs, err = parseInt(key, value)
	case "SERIAL_READ_TIMEOUT_MS":
		c.SerialReadTimeoutMs, err = parseInt(key, value)

	// Filter / classifier
	case "SMOOTHING_ALPHA":
		c.SmoothingAlpha, err = parseFloat(key, value)
	case "PITCH_THRESHOLD_DEG":
		c.PitchThresholdDeg, err = parseFloat(key, value)
	case "MOTION_NOISE_DEG":
		c.MotionNoiseDeg, err = parseFloat(key, value)

	// Alert bands
	case "ALERT_GENTLE_S":
		c.AlertGentleS, err = parseInt(key, value)
	case "ALERT_WARNING_S":
		c.AlertWarningS, err = parseInt(key, value)
	case "ALERT_URGENT_S":
		c.AlertUrgentS, err = parseInt(key, value)
	case "ALERT_CRITICAL_S":
		c.AlertCriticalS, err = parseInt(key, value)

	// Timing
	case "TICK_INTERVAL_MS":
		c.TickIntervalMs, err = parseInt(key, value)

	// Logging
	case "CSV_LOG_FILE":
		c.CSVLogFile = value
	case "DIAGNOSTIC_BUFFER_SIZE":
		c.DiagnosticBufferSize, err = parseInt(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_POSTURE":
		c.TopicPosture = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks ranges and cross-field constraints.
func (c *Config) validate() error {
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive, got %d", c.SerialBaudRate)
	}
	if c.SerialDriver != "jacobsa" && c.SerialDriver != "bugst" {
		return fmt.Errorf("SERIAL_DRIVER must be jacobsa or bugst, got %q", c.SerialDriver)
	}
	if c.SerialSettleMs < 0 {
		return fmt.Errorf("SERIAL_SETTLE_MS must not be negative, got %d", c.SerialSettleMs)
	}
	if c.SerialReadTimeoutMs <= 0 {
		return fmt.Errorf("SERIAL_READ_TIMEOUT_MS must be positive, got %d", c.SerialReadTimeoutMs)
	}
	if !(c.SmoothingAlpha > 0 && c.SmoothingAlpha < 1) {
		return fmt.Errorf("SMOOTHING_ALPHA must be in (0, 1), got %v", c.SmoothingAlpha)
	}
	if c.MotionNoiseDeg < 0 {
		return fmt.Errorf("MOTION_NOISE_DEG must not be negative, got %v", c.MotionNoiseDeg)
	}
	if c.AlertGentleS <= 0 {
		return fmt.Errorf("ALERT_GENTLE_S must be positive, got %d", c.AlertGentleS)
	}
	if !(c.AlertGentleS < c.AlertWarningS && c.AlertWarningS < c.AlertUrgentS && c.AlertUrgentS < c.AlertCriticalS) {
		return fmt.Errorf("alert bands must be strictly ascending: gentle=%d warning=%d urgent=%d critical=%d",
			c.AlertGentleS, c.AlertWarningS, c.AlertUrgentS, c.AlertCriticalS)
	}
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("TICK_INTERVAL_MS must be positive, got %d", c.TickIntervalMs)
	}
	if c.DiagnosticBufferSize <= 0 {
		return fmt.Errorf("DIAGNOSTIC_BUFFER_SIZE must be positive, got %d", c.DiagnosticBufferSize)
	}
	if c.MQTTBroker != "" && (c.TopicPosture == "" || c.TopicCalibration == "") {
		return fmt.Errorf("TOPIC_POSTURE and TOPIC_CALIBRATION are required when MQTT_BROKER is set")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	return nil
}
