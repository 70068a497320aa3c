// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serialport opens the byte transports the wearable streams over and
// manages the single active session the pipeline reads from.
package serialport

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/orientation"
)

// newIMUSource is replaced in tests.
var newIMUSource = orientation.NewIMUSource

// Port is the minimal transport the session manager needs. Real serial
// ports, replay files and the mock device all satisfy it.
type Port interface {
	io.ReadWriter
	io.Closer
}

// inputFlusher is implemented by transports that can drop buffered input in
// one call (go.bug.st/serial).
type inputFlusher interface {
	ResetInputBuffer() error
}

// Driver names the serial library used for /dev and COM endpoints.
const (
	DriverJacobsa = "jacobsa"
	DriverBugst   = "bugst"
)

// Endpoint prefixes that select a non-serial transport.
const (
	FilePrefix = "file:"
	MockPrefix = "mock:"
	IMUPrefix  = "imu:"
)

// DefaultBaudRate matches the wearable firmware.
const DefaultBaudRate = 115200

// PortOptions describes how endpoints are opened.
type PortOptions struct {
	Driver      string        `json:"driver"`
	BaudRate    int           `json:"baud_rate"`
	ReadTimeout time.Duration `json:"read_timeout"`
	Settle      time.Duration `json:"settle"`
}

// DefaultPortOptions returns the options used when nothing is configured.
func DefaultPortOptions() PortOptions {
	opts, _ := PortOptions{Settle: 2 * time.Second}.Normalize()
	return opts
}

// Normalize validates the options and applies defaults for any unset values.
// A zero Settle is kept: it disables the post-open wait.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.BaudRate < 0 {
		return opts, fmt.Errorf("invalid baud rate %d", opts.BaudRate)
	}

	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	switch driver {
	case "":
		driver = DriverJacobsa
	case DriverJacobsa, DriverBugst:
	default:
		return opts, fmt.Errorf("unsupported serial driver %q: expected %s or %s", opts.Driver, DriverJacobsa, DriverBugst)
	}
	opts.Driver = driver

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 100 * time.Millisecond
	}
	if opts.ReadTimeout < 0 {
		return opts, fmt.Errorf("invalid read timeout %v", opts.ReadTimeout)
	}
	if opts.Settle < 0 {
		return opts, fmt.Errorf("invalid settle delay %v", opts.Settle)
	}
	return opts, nil
}

// Opener opens a transport for an endpoint.
type Opener func(endpoint string, opts PortOptions) (Port, error)

// OpenEndpoint is the default Opener. It dispatches on the endpoint form:
// "file:<path>" replays a telemetry log, "mock:" synthesises a wearable,
// "imu:[spidev[,cs]]" reads an MPU9250 wired to this host, and anything else
// is a serial device opened with the configured driver.
func OpenEndpoint(endpoint string, opts PortOptions) (Port, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(endpoint, FilePrefix):
		return openReplay(strings.TrimPrefix(endpoint, FilePrefix))
	case strings.HasPrefix(endpoint, MockPrefix):
		return NewMockDevice(time.Now), nil
	case strings.HasPrefix(endpoint, IMUPrefix):
		return openIMU(strings.TrimPrefix(endpoint, IMUPrefix))
	case strings.TrimSpace(endpoint) == "":
		return nil, fmt.Errorf("empty endpoint")
	}

	if opts.Driver == DriverBugst {
		return openBugst(endpoint, opts)
	}
	return openJacobsa(endpoint, opts)
}

// imuWiring splits "spidev[,cs]" into its parts, defaulting either.
func imuWiring(spec string) (spiPath, csPin string) {
	spiPath, csPin = orientation.DefaultIMUSPI, orientation.DefaultIMUCS
	path, pin, hasPin := strings.Cut(strings.TrimSpace(spec), ",")
	if path != "" {
		spiPath = path
	}
	if hasPin && pin != "" {
		csPin = pin
	}
	return spiPath, csPin
}

func openIMU(spec string) (Port, error) {
	spiPath, csPin := imuWiring(spec)
	src, err := newIMUSource(spiPath, csPin)
	if err != nil {
		return nil, err
	}
	return NewIMUDevice(src, time.Now), nil
}
