// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

// DefaultAlpha weights new samples equally against history.
const DefaultAlpha = 0.5

var ErrInvalidAlpha = errors.New("smoothing alpha must be in (0, 1)")

// FilterState is the exponential moving average history.
type FilterState struct {
	SmoothedPitch float64
	SmoothedRoll  float64
	Initialized   bool
}

// Smoothed is one filter output. PitchRaw is passed through unfiltered.
type Smoothed struct {
	Pitch    float64
	Roll     float64
	PitchRaw float64
}

// Smoother applies an exponential moving average to pitch and roll
// independently. It is deterministic: the same samples and reset points
// always yield the same outputs. Not safe for concurrent use.
type Smoother struct {
	alpha float64
	state FilterState
}

// NewSmoother returns a cold smoother. Higher alpha is more responsive,
// lower alpha is smoother.
func NewSmoother(alpha float64) (*Smoother, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}
	return &Smoother{alpha: alpha}, nil
}

// Alpha returns the smoothing constant.
func (s *Smoother) Alpha() float64 {
	return s.alpha
}

// State returns a copy of the filter history.
func (s *Smoother) State() FilterState {
	return s.state
}

// Apply feeds one sample through the filter. The first sample after
// construction or Reset is returned unchanged.
func (s *Smoother) Apply(sample telemetry.PostureSample) Smoothed {
	if !s.state.Initialized {
		s.state = FilterState{
			SmoothedPitch: sample.Pitch,
			SmoothedRoll:  sample.Roll,
			Initialized:   true,
		}
	} else {
		s.state.SmoothedPitch = s.alpha*sample.Pitch + (1-s.alpha)*s.state.SmoothedPitch
		s.state.SmoothedRoll = s.alpha*sample.Roll + (1-s.alpha)*s.state.SmoothedRoll
	}
	return Smoothed{
		Pitch:    s.state.SmoothedPitch,
		Roll:     s.state.SmoothedRoll,
		PitchRaw: sample.PitchRaw,
	}
}

// Reset discards the history so the next sample is a cold start. The
// session manager calls it on every transport switch.
func (s *Smoother) Reset() {
	s.state = FilterState{}
}
