package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTiltFromAccel(t *testing.T) {
	tests := []struct {
		name       string
		ax, ay, az float64
		pitch      float64
		roll       float64
	}{
		{"flat", 0, 0, 16384, 0, 0},
		{"nose down 45", -1, 0, 1, 45, 0},
		{"nose up 30", 0.5, 0, math.Sqrt(3) / 2, -30, 0},
		{"right side down 90", 0, 1, 0, 0, 90},
		{"scale free", -200, 0, 200, 45, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tiltFromAccel(tt.ax, tt.ay, tt.az)
			assert.InDelta(t, tt.pitch, p.Pitch, 1e-9)
			assert.InDelta(t, tt.roll, p.Roll, 1e-9)
		})
	}
}
