// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

// ANSI color codes for terminal output
const (
	colorReset     = "\033[0m"
	colorGreen     = "\033[92m"
	colorYellow    = "\033[93m"
	colorOrange    = "\033[38;5;214m"
	colorRed       = "\033[91m"
	colorBrightRed = "\033[91;1m"
	colorBlue      = "\033[94m"
	colorGray      = "\033[90m"
)

const barWidth = 20

func alertColor(l posture.AlertLevel) string {
	switch l {
	case posture.AlertNone:
		return colorGreen
	case posture.AlertGentle:
		return colorYellow
	case posture.AlertWarning:
		return colorOrange
	case posture.AlertUrgent:
		return colorRed
	case posture.AlertCritical:
		return colorBrightRed
	}
	return colorReset
}

func bandColor(b posture.Band) string {
	switch b {
	case posture.BandGood:
		return colorGreen
	case posture.BandOK:
		return colorYellow
	case posture.BandSlouch:
		return colorOrange
	}
	return colorRed
}

// formatDuration renders whole seconds as 45s, 2m 5s or 1h 3m.
func formatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// TerminalSink renders the pipeline as a single refreshing status line, with
// banners for boot, calibration and alert changes.
type TerminalSink struct {
	w         io.Writer
	color     bool
	midLine   bool
	lastLevel posture.AlertLevel
}

// NewTerminalSink writes to w; color enables ANSI escapes.
func NewTerminalSink(w io.Writer, color bool) *TerminalSink {
	return &TerminalSink{w: w, color: color}
}

func (t *TerminalSink) paint(code, s string) string {
	if !t.color {
		return s
	}
	return code + s + colorReset
}

func (t *TerminalSink) postureBar(pitch, threshold float64) string {
	n := int(min(max(pitch, 0), barWidth))
	band := posture.BandFor(pitch, threshold)
	bar := strings.Repeat("█", n) + strings.Repeat("░", barWidth-n)
	return t.paint(bandColor(band), bar) + " " + band.String()
}

// newLine ends a pending status line before printing anything else.
func (t *TerminalSink) newLine() {
	if t.midLine {
		fmt.Fprintln(t.w)
		t.midLine = false
	}
}

// StatusLine is the one-line summary of a snapshot.
func (t *TerminalSink) StatusLine(s pipeline.Snapshot) string {
	st := s.Posture
	color := alertColor(st.AlertLevel)

	movement := "🧍"
	if st.IsMoving {
		movement = "🏃"
	}
	alert := "  "
	if st.AlertActive() {
		alert = "🔔"
	}

	return fmt.Sprintf("%s Pitch: %s | Roll: %+6.2f° | %s | Slouch: %s | %s | Alert: %s",
		alert,
		t.paint(color, fmt.Sprintf("%+6.2f°", s.Sample.Pitch)),
		s.Sample.Roll,
		movement,
		t.paint(color, fmt.Sprintf("%8s", formatDuration(int(st.CumulativeSlouchSeconds())))),
		t.postureBar(s.Sample.Pitch, s.Threshold),
		t.paint(color, fmt.Sprintf("%-8s", strings.ToUpper(st.AlertLevel.String()))),
	)
}

func (t *TerminalSink) HandleSample(s pipeline.Snapshot) {
	fmt.Fprint(t.w, "\r"+strings.Repeat(" ", 120)+"\r"+t.StatusLine(s))
	t.midLine = true

	level := s.Posture.AlertLevel
	if level != t.lastLevel && level != posture.AlertNone {
		color := alertColor(level)
		warn := strings.Repeat("⚠️  ", 10)
		t.newLine()
		fmt.Fprintln(t.w, t.paint(color, warn))
		fmt.Fprintln(t.w, t.paint(color, fmt.Sprintf("ALERT: %s - Cumulative slouch: %s",
			strings.ToUpper(level.String()), formatDuration(int(s.Posture.CumulativeSlouchSeconds())))))
		fmt.Fprintln(t.w, t.paint(color, warn))
	}
	t.lastLevel = level
}

func (t *TerminalSink) HandleCalibration(st calibration.State) {
	t.newLine()
	switch st.Phase {
	case calibration.Calibrating:
		fmt.Fprintln(t.w, t.paint(colorYellow, fmt.Sprintf("⏳ Calibrating... Hold neutral position! (%ds)", st.CountdownS)))
	case calibration.Calibrated:
		fmt.Fprintln(t.w, t.paint(colorGreen, "✓ Calibration complete!"))
		fmt.Fprintln(t.w, t.paint(colorGreen, fmt.Sprintf("  Pitch offset: %.2f°", st.PitchOffset)))
		fmt.Fprintln(t.w, t.paint(colorGreen, fmt.Sprintf("  Roll offset:  %.2f°", st.RollOffset)))
		fmt.Fprintln(t.w)
	}
}

func (t *TerminalSink) HandleDiagnostic(d telemetry.DiagnosticLine) {
	t.newLine()
	if d.Status == telemetry.StatusInitialized {
		rule := strings.Repeat("=", 60)
		fmt.Fprintln(t.w)
		fmt.Fprintln(t.w, t.paint(colorBlue, rule))
		fmt.Fprintln(t.w, t.paint(colorBlue, "🚀 Posture Monitor Initialized"))
		fmt.Fprintln(t.w, t.paint(colorBlue, rule))
		fmt.Fprintln(t.w)
		return
	}
	fmt.Fprintln(t.w, t.paint(colorGray, d.Text))
}

// Header prints the startup banner.
func (t *TerminalSink) Header(endpoint string, baud int) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(t.w, t.paint(colorBlue, rule))
	fmt.Fprintln(t.w, t.paint(colorBlue, "  Posture Monitor - Real-time Serial Monitor"))
	fmt.Fprintln(t.w, t.paint(colorBlue, rule))
	fmt.Fprintf(t.w, "📡 Connecting to %s @ %d baud...\n", endpoint, baud)
}

// Connected reports a successful open.
func (t *TerminalSink) Connected() {
	fmt.Fprintln(t.w, t.paint(colorGreen, "✓ Connected!"))
	fmt.Fprintln(t.w, t.paint(colorGray, "Press Ctrl+C to stop"))
	fmt.Fprintln(t.w)
}

// Footer prints the shutdown summary.
func (t *TerminalSink) Footer(csvPath string) {
	t.newLine()
	fmt.Fprintln(t.w)
	fmt.Fprintln(t.w, t.paint(colorBlue, "Monitoring stopped."))
	if csvPath != "" {
		fmt.Fprintln(t.w, t.paint(colorGreen, "✓ Data logged to: "+csvPath))
	}
}
