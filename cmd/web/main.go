// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/posture_telemetry/internal/app"
	"github.com/relabs-tech/posture_telemetry/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the configuration file")
	port := flag.String("port", "", "serial port, file:<log>, mock: or imu:[spidev[,cs]] (overrides SERIAL_PORT)")
	flag.Parse()

	log.Println("starting posture monitor web server")

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunWeb(cfg, app.ResolveEndpoint(cfg, *port)); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
