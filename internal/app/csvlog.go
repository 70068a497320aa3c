package app

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

var csvHeader = []string{
	"timestamp", "datetime", "pitch", "roll", "cumulative_slouch_s",
	"is_moving", "alert_level", "alert_level_name", "alert_active",
}

// CSVSink appends one row per accepted sample to a log file.
type CSVSink struct {
	f   *os.File
	w   *csv.Writer
	now func() time.Time
}

// OpenCSVLog opens path for appending, writing the header when the file is
// new or empty. created reports whether the header was written.
func OpenCSVLog(path string) (sink *CSVSink, created bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open csv log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("stat csv log: %w", err)
	}

	s := &CSVSink{f: f, w: csv.NewWriter(f), now: time.Now}
	if info.Size() == 0 {
		if err := s.write(csvHeader); err != nil {
			f.Close()
			return nil, false, err
		}
		created = true
	}
	return s, created, nil
}

func (c *CSVSink) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (c *CSVSink) HandleSample(s pipeline.Snapshot) {
	rec := s.Record()
	row := []string{
		strconv.FormatInt(rec.Timestamp, 10),
		c.now().Format("2006-01-02T15:04:05.000000"),
		formatFloat(rec.Pitch),
		formatFloat(rec.Roll),
		formatFloat(rec.CumulativeSlouchS),
		strconv.FormatBool(rec.IsMoving),
		strconv.Itoa(rec.AlertLevel),
		rec.AlertLevelName,
		strconv.FormatBool(rec.AlertActive),
	}
	if err := c.write(row); err != nil {
		log.Printf("csv: %v", err)
	}
}

// Status lines are not logged.
func (c *CSVSink) HandleCalibration(calibration.State)        {}
func (c *CSVSink) HandleDiagnostic(telemetry.DiagnosticLine) {}

// Close flushes and closes the file.
func (c *CSVSink) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
