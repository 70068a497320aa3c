// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package posture classifies smoothed pitch/roll into a slouch state, a
// cumulative slouch duration and an alert level.
package posture

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultPitchThresholdDeg = 15.0
	DefaultMotionNoiseDeg    = 1.0

	// maxAngleDeg bounds the range a sample is expected to fall in. Larger
	// angles are classified but flagged.
	maxAngleDeg = 180.0
)

var ErrNonFinite = errors.New("non-finite angle")

// Config is the immutable classifier configuration for a session.
type Config struct {
	PitchThresholdDeg float64
	MotionNoiseDeg    float64
	Bands             Bands
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		PitchThresholdDeg: DefaultPitchThresholdDeg,
		MotionNoiseDeg:    DefaultMotionNoiseDeg,
		Bands:             DefaultBands,
	}
}

// State is the classification after the most recent accepted sample.
type State struct {
	AlertLevel AlertLevel
	// CumulativeSlouch grows while the slouch predicate holds and drops to
	// zero on the first sample where it does not.
	CumulativeSlouch time.Duration
	ForwardSlouch    bool
	IsMoving         bool
	OutOfRange       bool
	// LastTransitionAt is when the alert level or slouch predicate last
	// changed.
	LastTransitionAt time.Time

	// Pitch and Roll are the smoothed angles that produced this state.
	Pitch     float64
	Roll      float64
	HasSample bool
}

// AlertActive reports whether any alert is raised.
func (s State) AlertActive() bool {
	return s.AlertLevel != AlertNone
}

// CumulativeSlouchSeconds is CumulativeSlouch in seconds.
func (s State) CumulativeSlouchSeconds() float64 {
	return s.CumulativeSlouch.Seconds()
}

// Classifier applies Config to successive smoothed samples.
type Classifier struct {
	cfg Config
}

// NewClassifier validates cfg and returns a classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if math.IsNaN(cfg.PitchThresholdDeg) || math.IsInf(cfg.PitchThresholdDeg, 0) {
		return nil, fmt.Errorf("pitch threshold must be finite, got %v", cfg.PitchThresholdDeg)
	}
	if !(cfg.MotionNoiseDeg >= 0) || math.IsInf(cfg.MotionNoiseDeg, 0) {
		return nil, fmt.Errorf("motion noise floor must be a finite non-negative angle, got %v", cfg.MotionNoiseDeg)
	}
	if err := cfg.Bands.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Slouching is the authoritative slouch predicate: forward pitch at or
// beyond the threshold.
func (c *Classifier) Slouching(pitch float64) bool {
	return pitch >= c.cfg.PitchThresholdDeg
}

// Classify derives the next State from a smoothed sample, the previous State
// and the wall-clock time dt elapsed since the previous accepted sample.
//
// Non-finite angles are rejected with ErrNonFinite and prev is returned
// unchanged. A sample identical to the previous one with dt == 0 is a
// duplicate and also returns prev unchanged.
func (c *Classifier) Classify(pitch, roll float64, prev State, dt time.Duration, at time.Time) (State, error) {
	if !finite(pitch) || !finite(roll) {
		return prev, fmt.Errorf("%w: pitch=%v roll=%v", ErrNonFinite, pitch, roll)
	}
	if dt < 0 {
		dt = 0
	}
	if prev.HasSample && dt == 0 && pitch == prev.Pitch && roll == prev.Roll {
		return prev, nil
	}

	next := State{
		ForwardSlouch:    c.Slouching(pitch),
		OutOfRange:       math.Abs(pitch) > maxAngleDeg || math.Abs(roll) > maxAngleDeg,
		LastTransitionAt: prev.LastTransitionAt,
		Pitch:            pitch,
		Roll:             roll,
		HasSample:        true,
	}

	if prev.HasSample {
		next.IsMoving = math.Abs(pitch-prev.Pitch) > c.cfg.MotionNoiseDeg ||
			math.Abs(roll-prev.Roll) > c.cfg.MotionNoiseDeg
	}

	// The first slouching sample starts the accumulator at zero; only time
	// spent between two slouching samples counts.
	if next.ForwardSlouch && prev.ForwardSlouch {
		next.CumulativeSlouch = prev.CumulativeSlouch + dt
	}
	next.AlertLevel = c.cfg.Bands.Level(next.CumulativeSlouch)

	if !prev.HasSample || next.AlertLevel != prev.AlertLevel || next.ForwardSlouch != prev.ForwardSlouch {
		next.LastTransitionAt = at
	}
	return next, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
