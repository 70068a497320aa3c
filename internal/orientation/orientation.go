// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "math"

// Pose is a pitch/roll orientation in degrees.
type Pose struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Source provides poses over time.
type Source interface {
	Next() (Pose, error)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
