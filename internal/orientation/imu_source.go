package orientation

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// Default wiring of an MPU9250 on the Pi's second SPI bus.
const (
	DefaultIMUSPI = "/dev/spidev6.0"
	DefaultIMUCS  = "18"
)

type imuSource struct {
	imu *mpu9250.MPU9250
}

// NewIMUSource initializes an MPU9250 on spiPath with chip select csPin and
// returns a Source that derives pitch and roll from the accelerometer.
func NewIMUSource(spiPath, csPin string) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiPath, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU SPI transport: %w", err)
	}

	imu, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU new device: %w", err)
	}
	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU init: %w", err)
	}
	if err := imu.Calibrate(); err != nil {
		return nil, fmt.Errorf("IMU calibrate: %w", err)
	}

	return &imuSource{imu: imu}, nil
}

func (s *imuSource) Next() (Pose, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return Pose{}, fmt.Errorf("IMU acc X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return Pose{}, fmt.Errorf("IMU acc Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return Pose{}, fmt.Errorf("IMU acc Z: %w", err)
	}
	return tiltFromAccel(float64(ax), float64(ay), float64(az)), nil
}

// tiltFromAccel estimates pitch and roll from the gravity vector. Only the
// ratios matter, so raw counts work as well as g.
func tiltFromAccel(ax, ay, az float64) Pose {
	roll := math.Atan2(ay, az)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Pitch: pitch * 180.0 / math.Pi,
		Roll:  roll * 180.0 / math.Pi,
	}
}
