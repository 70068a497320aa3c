// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rotation is a row-major 3x3 rotation matrix.
type Rotation [3][3]float64

// Vector3 is a point or direction in the sensor frame: X is the roll axis,
// Y the pitch axis, Z up.
type Vector3 [3]float64

// Forward is the sensor's forward direction at rest.
var Forward = Vector3{0, 1, 0}

// RotationX is the rotation about the X (roll) axis.
func RotationX(rollDeg float64) *mat.Dense {
	s, c := math.Sincos(radians(rollDeg))
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// RotationY is the rotation about the Y (pitch) axis.
func RotationY(pitchDeg float64) *mat.Dense {
	s, c := math.Sincos(radians(pitchDeg))
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// Rotate returns R = R_pitch · R_roll: roll is applied first, then pitch.
// The order is fixed; reversing it tilts combined pitch+roll input the other
// way on screen.
func Rotate(pitchDeg, rollDeg float64) Rotation {
	var r mat.Dense
	r.Mul(RotationY(pitchDeg), RotationX(rollDeg))
	return rotationFrom(&r)
}

// ForwardVector is the Forward direction under Rotate(pitchDeg, rollDeg).
func ForwardVector(pitchDeg, rollDeg float64) Vector3 {
	return Rotate(pitchDeg, rollDeg).Apply(Forward)
}

// Dense returns the rotation as a gonum matrix.
func (r Rotation) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		r[0][0], r[0][1], r[0][2],
		r[1][0], r[1][1], r[1][2],
		r[2][0], r[2][1], r[2][2],
	})
}

// Apply rotates v.
func (r Rotation) Apply(v Vector3) Vector3 {
	var out mat.VecDense
	out.MulVec(r.Dense(), mat.NewVecDense(3, []float64{v[0], v[1], v[2]}))
	return Vector3{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

func rotationFrom(m mat.Matrix) Rotation {
	var r Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m.At(i, j)
		}
	}
	return r
}

// Face is one quadrilateral face of the rendered sensor body.
type Face [4]Vector3

// SensorBox returns the faces of the flat box the visualiser draws for the
// sensor: 2 x 2 x 0.4, centred on the origin. Faces are front, back, left,
// right, top, bottom.
func SensorBox() []Face {
	v := [8]Vector3{
		{-1, -1, -0.2}, {1, -1, -0.2}, {1, 1, -0.2}, {-1, 1, -0.2},
		{-1, -1, 0.2}, {1, -1, 0.2}, {1, 1, 0.2}, {-1, 1, 0.2},
	}
	return []Face{
		{v[0], v[1], v[5], v[4]},
		{v[2], v[3], v[7], v[6]},
		{v[0], v[3], v[7], v[4]},
		{v[1], v[2], v[6], v[5]},
		{v[4], v[5], v[6], v[7]},
		{v[0], v[1], v[2], v[3]},
	}
}

// RotateFaces applies r to every vertex.
func RotateFaces(faces []Face, r Rotation) []Face {
	out := make([]Face, len(faces))
	for i, f := range faces {
		for j, v := range f {
			out[i][j] = r.Apply(v)
		}
	}
	return out
}
