// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relabs-tech/posture_telemetry/internal/config"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/serialport"
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ResolveEndpoint picks the endpoint to open: the override if set, then
// SERIAL_PORT, and auto-detection when either is "auto" or empty.
func ResolveEndpoint(cfg *config.Config, override string) string {
	ep := strings.TrimSpace(override)
	if ep == "" {
		ep = strings.TrimSpace(cfg.SerialPort)
	}
	if ep == "" || strings.EqualFold(ep, "auto") {
		ep = serialport.DetectPort()
		log.Printf("serial: auto-detected port %s", ep)
	}
	return ep
}

// PortOptions converts the serial section of cfg.
func PortOptions(cfg *config.Config) serialport.PortOptions {
	return serialport.PortOptions{
		Driver:      cfg.SerialDriver,
		BaudRate:    cfg.SerialBaudRate,
		ReadTimeout: millis(cfg.SerialReadTimeoutMs),
		Settle:      millis(cfg.SerialSettleMs),
	}
}

// PipelineConfig converts the filter and classifier section of cfg.
func PipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Alpha: cfg.SmoothingAlpha,
		Posture: posture.Config{
			PitchThresholdDeg: cfg.PitchThresholdDeg,
			MotionNoiseDeg:    cfg.MotionNoiseDeg,
			Bands: posture.Bands{
				Gentle:   time.Duration(cfg.AlertGentleS) * time.Second,
				Warning:  time.Duration(cfg.AlertWarningS) * time.Second,
				Urgent:   time.Duration(cfg.AlertUrgentS) * time.Second,
				Critical: time.Duration(cfg.AlertCriticalS) * time.Second,
			},
		},
		TickInterval: millis(cfg.TickIntervalMs),
	}
}

// newPipeline builds a disconnected manager and a monitor reading from it.
func newPipeline(cfg *config.Config, sinks ...pipeline.Sink) (*serialport.Manager, *pipeline.Monitor, error) {
	mgr, err := serialport.NewManager(serialport.OpenEndpoint, PortOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("serial options: %w", err)
	}
	mon, err := pipeline.NewMonitor(mgr, PipelineConfig(cfg), sinks...)
	if err != nil {
		return nil, nil, err
	}
	return mgr, mon, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runMonitor runs mon until ctx ends. Cancellation is a clean stop.
func runMonitor(ctx context.Context, mon *pipeline.Monitor) error {
	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunConsole monitors endpoint in the terminal, logging each sample to the
// CSV file and, when a broker is configured, publishing to MQTT.
func RunConsole(cfg *config.Config, endpoint string) error {
	ctx, stop := signalContext()
	defer stop()

	term := NewTerminalSink(os.Stdout, true)
	sinks := []pipeline.Sink{term}

	if cfg.CSVLogFile != "" {
		csvLog, created, err := OpenCSVLog(cfg.CSVLogFile)
		if err != nil {
			return err
		}
		defer csvLog.Close()
		if created {
			log.Printf("csv: created log file %s", cfg.CSVLogFile)
		} else {
			log.Printf("csv: appending to existing log file %s", cfg.CSVLogFile)
		}
		sinks = append(sinks, csvLog)
	}

	if cfg.MQTTBroker != "" {
		client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer client.Disconnect(250)
		mqttSink := NewMQTTSink(client, cfg.TopicPosture, cfg.TopicCalibration)
		defer mqttSink.Close()
		sinks = append(sinks, mqttSink)
	}

	mgr, mon, err := newPipeline(cfg, sinks...)
	if err != nil {
		return err
	}
	defer mgr.Close()

	term.Header(endpoint, cfg.SerialBaudRate)
	if _, err := mgr.Open(ctx, endpoint); err != nil {
		return err
	}
	term.Connected()

	err = runMonitor(ctx, mon)
	term.Footer(cfg.CSVLogFile)
	return err
}

// RunWeb serves the visualiser and streams the pipeline to it. A failed
// initial open is logged and the server keeps running so the operator can
// pick another port from the page.
func RunWeb(cfg *config.Config, endpoint string) error {
	ctx, stop := signalContext()
	defer stop()

	mgr, mon, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer mgr.Close()

	web := NewWebServer(mon, cfg.DiagnosticBufferSize)
	metrics := NewMetricsSink(mon.Stats)
	web.SetMetricsHandler(metrics.Handler())
	mon.AddSink(web)
	mon.AddSink(metrics)

	if _, err := mgr.Open(ctx, endpoint); err != nil {
		log.Printf("web: %v (waiting for a port switch)", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runMonitor(ctx, mon) }()

	if err := web.Serve(ctx, fmt.Sprintf(":%d", cfg.WebServerPort)); err != nil {
		stop()
		<-errCh
		return err
	}
	return <-errCh
}

// RunDisplay shows the pipeline on the SSD1306.
func RunDisplay(cfg *config.Config, endpoint string) error {
	ctx, stop := signalContext()
	defer stop()

	dev, bus, err := OpenDisplay(cfg.DisplayI2CBus, cfg.DisplayI2CAddr)
	if err != nil {
		return err
	}
	defer bus.Close()

	oled := NewDisplaySink(dev, 250*time.Millisecond)
	oled.Splash()

	mgr, mon, err := newPipeline(cfg, oled)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if _, err := mgr.Open(ctx, endpoint); err != nil {
		return err
	}
	return runMonitor(ctx, mon)
}
