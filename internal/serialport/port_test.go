package serialport

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"github.com/relabs-tech/posture_telemetry/internal/orientation"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

func TestPortOptions_Normalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{Driver: DriverJacobsa, BaudRate: 115200, ReadTimeout: 100 * time.Millisecond}, opts)

	opts, err = PortOptions{Driver: " BugSt ", BaudRate: 9600, Settle: time.Second}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DriverBugst, opts.Driver)
	assert.Equal(t, 9600, opts.BaudRate)
	assert.Equal(t, time.Second, opts.Settle)

	for _, bad := range []PortOptions{
		{BaudRate: -1},
		{Driver: "pyserial"},
		{ReadTimeout: -time.Second},
		{Settle: -time.Second},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}

	assert.Equal(t, 2*time.Second, DefaultPortOptions().Settle)
}

func TestInterCharTimeout(t *testing.T) {
	assert.Equal(t, uint(100), interCharTimeout(0))
	assert.Equal(t, uint(100), interCharTimeout(100*time.Millisecond))
	assert.Equal(t, uint(200), interCharTimeout(150*time.Millisecond))
	assert.Equal(t, uint(25500), interCharTimeout(time.Minute))
}

func TestOpenEndpoint_Errors(t *testing.T) {
	_, err := OpenEndpoint("", PortOptions{})
	assert.Error(t, err)

	_, err = OpenEndpoint("file:", PortOptions{})
	assert.Error(t, err)

	_, err = OpenEndpoint("file:/definitely/not/here.log", PortOptions{})
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = OpenEndpoint("mock:", PortOptions{Driver: "nope"})
	assert.Error(t, err)
}

func TestReplayPort_FollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"pitch\":1,\"roll\":2}\n"), 0o644))

	port, err := OpenEndpoint("file:"+path, PortOptions{})
	require.NoError(t, err)
	defer port.Close()

	buf := make([]byte, 256)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "{\"pitch\":1,\"roll\":2}\n", string(buf[:n]))

	n, err = port.Read(buf)
	require.NoError(t, err, "end of file is not an error")
	assert.Zero(t, n)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("{\"pitch\":3,\"roll\":4}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	n, err = port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "{\"pitch\":3,\"roll\":4}\n", string(buf[:n]))

	n, err = port.Write([]byte("ignored"))
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestMockDevice_BootThenSamples(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	dev := NewMockDevice(func() time.Time { return now })

	read := func() []telemetry.Frame {
		buf := make([]byte, 4096)
		n, err := dev.Read(buf)
		require.NoError(t, err)
		var frames []telemetry.Frame
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if f, ok := telemetry.Decode([]byte(line)); ok {
				frames = append(frames, f)
			}
		}
		return frames
	}

	frames := read()
	require.Len(t, frames, 2)
	assert.Equal(t, telemetry.DiagnosticLine{Text: `{"status":"initialized"}`, Status: "initialized"}, frames[0])
	assert.Equal(t, telemetry.CalibrationEvent{Phase: telemetry.PhaseCalibrating, CountdownS: 3}, frames[1])

	assert.Empty(t, read(), "nothing due yet")

	now = now.Add(3 * time.Second)
	frames = read()
	require.Len(t, frames, 3)
	assert.Equal(t, telemetry.CalibrationEvent{Phase: telemetry.PhaseComplete, PitchOffset: 1.2, RollOffset: -0.4}, frames[2])

	now = now.Add(MockSampleInterval)
	frames = read()
	require.Len(t, frames, 1)
	s, ok := frames[0].(telemetry.PostureSample)
	require.True(t, ok)
	assert.InDelta(t, s.Pitch+1.2, s.PitchRaw, 1e-9)

	now = now.Add(10 * time.Second)
	assert.Len(t, read(), 1, "a long gap yields only the latest pose")

	require.NoError(t, dev.Close())
	_, err := dev.Read(make([]byte, 8))
	assert.Error(t, err)
	_, err = dev.Write([]byte("x"))
	assert.Error(t, err)
}

func stubPorts(t *testing.T, ports []*enumerator.PortDetails, err error) {
	t.Helper()
	orig := listDetailed
	listDetailed = func() ([]*enumerator.PortDetails, error) { return ports, err }
	t.Cleanup(func() { listDetailed = orig })
}

func TestListPorts(t *testing.T) {
	stubPorts(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		nil,
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno"},
	}, nil)

	ports, err := ListPorts()
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, "/dev/ttyACM0", ports[0].Path)
	assert.Equal(t, "USB ACM (ttyACM0)", ports[0].FriendlyName)
	assert.Equal(t, "2341", ports[0].VID)
	assert.Equal(t, "ttyS0", ports[1].FriendlyName)
}

func TestDetectPort(t *testing.T) {
	stubPorts(t, []*enumerator.PortDetails{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyUSB3"}}, nil)
	assert.Equal(t, "/dev/ttyUSB3", DetectPort())

	stubPorts(t, []*enumerator.PortDetails{{Name: "COM4", IsUSB: true}}, nil)
	assert.Equal(t, "COM4", DetectPort())

	stubPorts(t, []*enumerator.PortDetails{{Name: "/dev/ttyS0"}}, nil)
	assert.Equal(t, FallbackPort, DetectPort())

	stubPorts(t, nil, errors.New("enumeration unsupported"))
	assert.Equal(t, FallbackPort, DetectPort())
}

func TestFriendlyName(t *testing.T) {
	assert.Equal(t, "USB Serial (ttyUSB0)", friendlyName("/dev/ttyUSB0"))
	assert.Equal(t, "USB Modem (cu.usbmodem1101)", friendlyName("/dev/cu.usbmodem1101"))
	assert.Equal(t, "UART (ttyAMA0)", friendlyName("/dev/ttyAMA0"))
	assert.Equal(t, "Serial (COM3)", friendlyName("COM3"))
}

type fixedSource struct {
	pose orientation.Pose
	err  error
}

func (f *fixedSource) Next() (orientation.Pose, error) { return f.pose, f.err }

func TestIMUWiring(t *testing.T) {
	tests := []struct {
		spec, spi, cs string
	}{
		{"", orientation.DefaultIMUSPI, orientation.DefaultIMUCS},
		{"/dev/spidev0.0", "/dev/spidev0.0", orientation.DefaultIMUCS},
		{"/dev/spidev0.1,8", "/dev/spidev0.1", "8"},
		{",7", orientation.DefaultIMUSPI, "7"},
	}
	for _, tt := range tests {
		spi, cs := imuWiring(tt.spec)
		assert.Equal(t, tt.spi, spi, tt.spec)
		assert.Equal(t, tt.cs, cs, tt.spec)
	}
}

func TestOpenEndpoint_IMU(t *testing.T) {
	var gotSPI, gotCS string
	src := &fixedSource{pose: orientation.Pose{Pitch: 12, Roll: -3}}
	newIMUSource = func(spiPath, csPin string) (orientation.Source, error) {
		gotSPI, gotCS = spiPath, csPin
		return src, nil
	}
	t.Cleanup(func() { newIMUSource = orientation.NewIMUSource })

	port, err := OpenEndpoint("imu:/dev/spidev0.0,8", PortOptions{})
	require.NoError(t, err)
	defer port.Close()
	assert.Equal(t, "/dev/spidev0.0", gotSPI)
	assert.Equal(t, "8", gotCS)
	assert.False(t, isDevice("imu:"))

	newIMUSource = func(string, string) (orientation.Source, error) { return nil, errors.New("no spi") }
	_, err = OpenEndpoint("imu:", PortOptions{})
	assert.EqualError(t, err, "no spi")
}

func TestIMUDevice_Samples(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := &fixedSource{pose: orientation.Pose{Pitch: 12, Roll: -3}}
	dev := NewIMUDevice(src, func() time.Time { return now })

	buf := make([]byte, 4096)
	n, err := dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "{\"status\":\"initialized\"}\n", string(buf[:n]))

	now = now.Add(MockSampleInterval)
	n, err = dev.Read(buf)
	require.NoError(t, err)
	frame, ok := telemetry.Decode([]byte(strings.TrimSpace(string(buf[:n]))))
	require.True(t, ok)
	assert.Equal(t, telemetry.PostureSample{Pitch: 12, Roll: -3, PitchRaw: 12}, frame)

	src.err = errors.New("spi read")
	now = now.Add(MockSampleInterval)
	n, err = dev.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n, "a failed read skips the sample")
}
