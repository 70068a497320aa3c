// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock orientation source that drifts slowly in and
// out of a forward slouch while swaying a little from side to side.
func NewMockSource() Source {
	return NewMockSourceAt(time.Now)
}

// NewMockSourceAt is NewMockSource driven by the given clock.
func NewMockSourceAt(now func() time.Time) Source {
	return &mockSource{start: now(), now: now}
}

func (m *mockSource) Next() (Pose, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	return Pose{
		Pitch: 10 + 12*math.Sin(elapsed/8),
		Roll:  5 * math.Sin(elapsed*0.9),
	}, nil
}
