package app

import (
	"fmt"
	"image"
	"image/draw"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

const (
	oledWidth  = 128
	oledHeight = 64
)

// screen is the part of *ssd1306.Dev the sink draws on.
type screen interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Bounds() image.Rectangle
}

// addrBus sends every transaction to addr. ssd1306.NewI2C always talks to
// 0x3C, so this is how a display strapped to 0x3D is reached.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// newDisplay initialises the SSD1306 at addr on bus.
func newDisplay(bus i2c.Bus, addr uint16) (*ssd1306.Dev, error) {
	return ssd1306.NewI2C(addrBus{Bus: bus, addr: addr}, &ssd1306.DefaultOpts)
}

// OpenDisplay initialises periph and opens the SSD1306 at addr on the named
// I2C bus ("" picks the first bus). The returned closer releases the bus.
func OpenDisplay(busName string, addr uint16) (*ssd1306.Dev, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := newDisplay(bus, addr)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", addr)
	return dev, bus, nil
}

// DisplaySink shows the latest posture on a 128x64 OLED. Updates are rate
// limited since each I2C frame takes tens of milliseconds.
type DisplaySink struct {
	dev      screen
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastDraw time.Time
}

// NewDisplaySink draws on dev at most once per interval.
func NewDisplaySink(dev screen, interval time.Duration) *DisplaySink {
	return &DisplaySink{dev: dev, interval: interval, now: time.Now}
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{image1bit.Off}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawLines(drawer *font.Drawer, x int, lines ...string) {
	for i, l := range lines {
		drawer.Dot = fixed.P(x, 13*(i+1))
		drawer.DrawString(l)
	}
}

// renderSplash is shown until the first sample.
func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newFrame()
	drawer.Dot = fixed.P(10, 26)
	drawer.DrawString("Posture Mon")
	drawer.Dot = fixed.P(5, 43)
	drawer.DrawString("Waiting...")
	return img
}

// renderCalibration shows the countdown or the resulting offsets.
func renderCalibration(st calibration.State) *image1bit.VerticalLSB {
	img, drawer := newFrame()
	switch st.Phase {
	case calibration.Calibrating:
		drawLines(drawer, 0, "Calibrating", "Hold still", fmt.Sprintf("%ds", st.CountdownS))
	case calibration.Calibrated:
		drawLines(drawer, 0, "Calibrated",
			fmt.Sprintf("P off: %5.1f", st.PitchOffset),
			fmt.Sprintf("R off: %5.1f", st.RollOffset))
	default:
		drawLines(drawer, 0, "Not calibrated")
	}
	return img
}

// renderPosture draws pitch, roll, slouch time and alert level, with a
// pitch bar along the bottom edge.
func renderPosture(s pipeline.Snapshot) *image1bit.VerticalLSB {
	img, drawer := newFrame()
	st := s.Posture
	drawLines(drawer, 0,
		fmt.Sprintf("P:%6.1f %s", s.Sample.Pitch, s.Band),
		fmt.Sprintf("R:%6.1f", s.Sample.Roll),
		"Slouch: "+formatDuration(int(st.CumulativeSlouchSeconds())),
		"Alert: "+strings.ToUpper(st.AlertLevel.String()),
	)

	n := int(min(max(s.Sample.Pitch, 0), barWidth) / barWidth * oledWidth)
	for x := 0; x < n; x++ {
		for y := oledHeight - 6; y < oledHeight; y++ {
			img.SetBit(x, y, image1bit.On)
		}
	}
	return img
}

func (d *DisplaySink) show(img image.Image) {
	if err := d.dev.Draw(d.dev.Bounds(), img, image.Point{}); err != nil {
		log.Printf("display: error updating display: %v", err)
	}
}

// Splash draws the startup screen.
func (d *DisplaySink) Splash() {
	d.show(renderSplash())
}

func (d *DisplaySink) HandleSample(s pipeline.Snapshot) {
	d.mu.Lock()
	now := d.now()
	if !d.lastDraw.IsZero() && now.Sub(d.lastDraw) < d.interval {
		d.mu.Unlock()
		return
	}
	d.lastDraw = now
	d.mu.Unlock()

	d.show(renderPosture(s))
}

func (d *DisplaySink) HandleCalibration(st calibration.State) {
	d.mu.Lock()
	d.lastDraw = d.now()
	d.mu.Unlock()
	d.show(renderCalibration(st))
}

func (d *DisplaySink) HandleDiagnostic(telemetry.DiagnosticLine) {}
