package serialport

import (
	"time"

	jserial "github.com/jacobsa/go-serial/serial"
	"go.bug.st/serial"
)

// openJacobsa opens a serial device with github.com/jacobsa/go-serial. Reads
// return after at most ReadTimeout when the line is idle, so a drain never
// blocks a tick for long.
func openJacobsa(path string, opts PortOptions) (Port, error) {
	serialOpts := jserial.OpenOptions{
		PortName:              path,
		BaudRate:              uint(opts.BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		ParityMode:            jserial.PARITY_NONE,
		InterCharacterTimeout: interCharTimeout(opts.ReadTimeout),
	}
	return jserial.Open(serialOpts)
}

// interCharTimeout converts a read timeout into the deciseconds-granular
// milliseconds value termios accepts.
func interCharTimeout(d time.Duration) uint {
	ms := uint(d / time.Millisecond)
	ms = (ms + 99) / 100 * 100
	if ms < 100 {
		ms = 100
	}
	if ms > 25500 {
		ms = 25500
	}
	return ms
}

// openBugst opens a serial device with go.bug.st/serial.
func openBugst(path string, opts PortOptions) (Port, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}
