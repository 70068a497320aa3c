package serialport

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// replayPort reads a telemetry log written by an earlier session or by a
// monitor that is still running. It starts at the beginning of the file and
// keeps following it: reaching the end only means no data yet.
type replayPort struct {
	f *os.File
}

func openReplay(path string) (Port, error) {
	if path == "" {
		return nil, fmt.Errorf("replay: missing file path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &replayPort{f: f}, nil
}

func (r *replayPort) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// Write is a no-op; the wearable never accepts commands.
func (r *replayPort) Write(p []byte) (int, error) {
	return len(p), nil
}

func (r *replayPort) Close() error {
	return r.f.Close()
}
