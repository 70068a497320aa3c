package posture

import "math"

// Band is the presentation bucket for the posture bar. It never drives
// alerting; only the Classifier's slouch predicate does.
type Band int

const (
	BandGood Band = iota
	BandOK
	BandSlouch
	BandBad
)

func (b Band) String() string {
	switch b {
	case BandGood:
		return "GOOD"
	case BandOK:
		return "OK"
	case BandSlouch:
		return "SLOUCH"
	case BandBad:
		return "BAD"
	default:
		return "?"
	}
}

// BandFor buckets pitch around threshold: GOOD below threshold-2, OK up to
// the threshold, SLOUCH up to threshold+10, BAD beyond.
func BandFor(pitch, threshold float64) Band {
	switch {
	case pitch < threshold-2:
		return BandGood
	case pitch < threshold:
		return BandOK
	case pitch < threshold+10:
		return BandSlouch
	default:
		return BandBad
	}
}

// Zone is the region of the pitch/roll plane a sample falls in, used to
// shade the 2-D angle view.
type Zone int

const (
	ZoneNeutral Zone = iota
	ZoneForward
	ZoneBackward
	ZoneLateral
)

func (z Zone) String() string {
	switch z {
	case ZoneNeutral:
		return "neutral"
	case ZoneForward:
		return "forward"
	case ZoneBackward:
		return "backward"
	case ZoneLateral:
		return "lateral"
	default:
		return "unknown"
	}
}

// ZoneFor places a sample in the four-quadrant zone model. Pitch deviation
// takes precedence over roll; roll uses the same threshold symmetrically.
func ZoneFor(pitch, roll, threshold float64) Zone {
	switch {
	case pitch >= threshold:
		return ZoneForward
	case pitch <= -threshold:
		return ZoneBackward
	case math.Abs(roll) >= threshold:
		return ZoneLateral
	default:
		return ZoneNeutral
	}
}
