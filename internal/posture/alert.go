package posture

import (
	"errors"
	"fmt"
	"time"
)

// AlertLevel is an ordered escalation tier: a larger value is a stronger
// alert.
type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertGentle
	AlertWarning
	AlertUrgent
	AlertCritical
)

var alertNames = [...]string{"none", "gentle", "warning", "urgent", "critical"}

func (l AlertLevel) String() string {
	if l < AlertNone || l > AlertCritical {
		return fmt.Sprintf("AlertLevel(%d)", int(l))
	}
	return alertNames[l]
}

// MarshalText encodes the level by name.
func (l AlertLevel) MarshalText() ([]byte, error) {
	if l < AlertNone || l > AlertCritical {
		return nil, fmt.Errorf("invalid alert level %d", int(l))
	}
	return []byte(alertNames[l]), nil
}

// ParseAlertLevel is the inverse of AlertLevel.String.
func ParseAlertLevel(name string) (AlertLevel, error) {
	for i, n := range alertNames {
		if n == name {
			return AlertLevel(i), nil
		}
	}
	return AlertNone, fmt.Errorf("unknown alert level %q", name)
}

var ErrNonMonotonicBands = errors.New("alert bands must be positive and strictly ascending")

// Bands holds the cumulative slouch duration at which each alert level
// starts. Below Gentle the level is None.
type Bands struct {
	Gentle   time.Duration
	Warning  time.Duration
	Urgent   time.Duration
	Critical time.Duration
}

// DefaultBands escalates after 30 s, 2 min, 5 min and 10 min of continuous
// slouching.
var DefaultBands = Bands{
	Gentle:   30 * time.Second,
	Warning:  2 * time.Minute,
	Urgent:   5 * time.Minute,
	Critical: 10 * time.Minute,
}

// Validate reports whether the bands are usable. A zero Gentle band would
// raise an alert on good posture, so it is rejected too.
func (b Bands) Validate() error {
	if b.Gentle <= 0 || b.Warning <= b.Gentle || b.Urgent <= b.Warning || b.Critical <= b.Urgent {
		return fmt.Errorf("%w: gentle=%v warning=%v urgent=%v critical=%v",
			ErrNonMonotonicBands, b.Gentle, b.Warning, b.Urgent, b.Critical)
	}
	return nil
}

// Level maps a cumulative slouch duration to an alert level. For valid
// bands it is monotonic: a longer duration never yields a lower level.
func (b Bands) Level(d time.Duration) AlertLevel {
	switch {
	case d >= b.Critical:
		return AlertCritical
	case d >= b.Urgent:
		return AlertUrgent
	case d >= b.Warning:
		return AlertWarning
	case d >= b.Gentle:
		return AlertGentle
	default:
		return AlertNone
	}
}
