package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/config"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/serialport"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

// DiagnoseTable prints raw device frames, unsmoothed, so the sensor
// mounting can be checked by tilting the head and watching which column moves.
type DiagnoseTable struct {
	w          io.Writer
	classifier *posture.Classifier
	now        func() time.Time
	rows       int
}

// NewDiagnoseTable writes to w and marks rows the classifier calls a slouch.
func NewDiagnoseTable(w io.Writer, c *posture.Classifier) *DiagnoseTable {
	return &DiagnoseTable{w: w, classifier: c, now: time.Now}
}

func (d *DiagnoseTable) rule() string {
	return strings.Repeat("=", 70)
}

// Intro prints the title and connection target.
func (d *DiagnoseTable) Intro(endpoint string, baud int) {
	fmt.Fprintf(d.w, "\n%s\n", d.rule())
	fmt.Fprintln(d.w, "SENSOR ORIENTATION DIAGNOSTIC TOOL")
	fmt.Fprintln(d.w, d.rule())
	fmt.Fprintf(d.w, "Connecting to: %s\n", endpoint)
	fmt.Fprintf(d.w, "Baud rate: %d\n\n", baud)
}

// Connected prints the operator instructions and the column header.
func (d *DiagnoseTable) Connected() {
	fmt.Fprintln(d.w, "✓ Connected successfully!")
	fmt.Fprintln(d.w)
	fmt.Fprintln(d.w, "INSTRUCTIONS:")
	fmt.Fprintln(d.w, "1. Start with your head in NEUTRAL position (good posture)")
	fmt.Fprintln(d.w, "2. Note the pitch and roll values")
	fmt.Fprintln(d.w, "3. TILT HEAD FORWARD (slouch) - watch which values change")
	fmt.Fprintln(d.w, "4. Return to NEUTRAL")
	fmt.Fprintln(d.w, "5. TILT HEAD BACKWARD - watch which values change")
	fmt.Fprintln(d.w, "6. Press Ctrl+C to exit")
	fmt.Fprintln(d.w)
	fmt.Fprintf(d.w, "%-12s %-14s %-14s %-14s\n", "Time", "Pitch (cal)", "Pitch (raw)", "Roll (cal)")
	fmt.Fprintln(d.w, strings.Repeat("-", 70))
}

// Handle prints one decoded frame.
func (d *DiagnoseTable) Handle(frame telemetry.Frame) {
	switch f := frame.(type) {
	case telemetry.PostureSample:
		marker := ""
		if d.classifier.Slouching(f.Pitch) {
			marker = "⚠ SLOUCH"
		}
		fmt.Fprintf(d.w, "%-12s %+7.2f°%6s %+7.2f°%6s %+7.2f°%6s %s\n",
			d.now().Format("15:04:05"), f.Pitch, "", f.PitchRaw, "", f.Roll, "", marker)
		d.rows++
	case telemetry.CalibrationEvent:
		switch f.Phase {
		case telemetry.PhaseCalibrating:
			fmt.Fprintf(d.w, "[INFO] calibrating (%ds)\n", f.CountdownS)
		case telemetry.PhaseComplete:
			fmt.Fprintf(d.w, "[INFO] calibrated: pitch offset %.2f°, roll offset %.2f°\n", f.PitchOffset, f.RollOffset)
		}
	case telemetry.DiagnosticLine:
		lower := strings.ToLower(f.Text)
		if f.Status != "" || strings.Contains(lower, "status") ||
			strings.Contains(lower, "debug") || strings.Contains(lower, "error") {
			fmt.Fprintf(d.w, "[INFO] %s\n", f.Text)
		}
	}
}

// Rows is the number of samples printed.
func (d *DiagnoseTable) Rows() int {
	return d.rows
}

// Tips prints how to read the table.
func (d *DiagnoseTable) Tips() {
	fmt.Fprintf(d.w, "\n\n%s\n", d.rule())
	fmt.Fprintln(d.w, "ANALYSIS TIPS:")
	fmt.Fprintln(d.w, d.rule())
	fmt.Fprintln(d.w, "• If FORWARD tilt makes pitch MORE POSITIVE → orientation is correct")
	fmt.Fprintln(d.w, "• If FORWARD tilt makes pitch MORE NEGATIVE → pitch axis is inverted")
	fmt.Fprintln(d.w, "• If FORWARD tilt changes roll instead of pitch → axes are swapped")
	fmt.Fprintln(d.w, "• Look at raw values vs calibrated values to understand the transformation")
	fmt.Fprintln(d.w)
}

// PrintPorts lists serial ports the way the diagnose tool shows them after a
// failed connect.
func PrintPorts(w io.Writer, ports []serialport.PortInfo, err error) {
	fmt.Fprintln(w, "Available ports:")
	if err != nil {
		fmt.Fprintf(w, "  (port enumeration failed: %v)\n", err)
		return
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "  (none found)")
		return
	}
	for _, p := range ports {
		desc := p.FriendlyName
		if p.Product != "" {
			desc += " - " + p.Product
		}
		fmt.Fprintf(w, "  - %s: %s\n", p.Path, desc)
	}
}

// diagnose drains mgr every tick until ctx ends.
func diagnose(ctx context.Context, mgr *serialport.Manager, table *DiagnoseTable, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for line := range mgr.ReadAvailable() {
				if frame, ok := telemetry.Decode(line); ok {
					table.Handle(frame)
				}
			}
		}
	}
}

// RunDiagnose prints the orientation table for endpoint to out until
// interrupted.
func RunDiagnose(cfg *config.Config, endpoint string, out io.Writer) error {
	ctx, stop := signalContext()
	defer stop()

	classifier, err := posture.NewClassifier(PipelineConfig(cfg).Posture)
	if err != nil {
		return err
	}
	mgr, err := serialport.NewManager(serialport.OpenEndpoint, PortOptions(cfg))
	if err != nil {
		return fmt.Errorf("serial options: %w", err)
	}

	table := NewDiagnoseTable(out, classifier)
	table.Intro(endpoint, cfg.SerialBaudRate)

	if _, err := mgr.Open(ctx, endpoint); err != nil {
		fmt.Fprintf(out, "✗ Error connecting to %s: %v\n\n", endpoint, err)
		ports, lerr := serialport.ListPorts()
		PrintPorts(out, ports, lerr)
		return err
	}
	table.Connected()

	diagnose(ctx, mgr, table, millis(cfg.TickIntervalMs))
	table.Tips()

	if err := mgr.Close(); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Serial connection closed")
	return nil
}
