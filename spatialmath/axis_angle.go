package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// R4AA is a rotation of Theta radians about the axis (RX, RY, RZ). The axis need not be unit
// length.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// ToQuat returns the unit quaternion for the rotation. A zero axis is no rotation.
func (r4 *R4AA) ToQuat() quat.Number {
	norm := math.Hypot(math.Hypot(r4.RX, r4.RY), r4.RZ)
	if norm == 0 {
		return Identity()
	}
	s, c := math.Sincos(r4.Theta / 2)
	s /= norm
	return quat.Number{Real: c, Imag: r4.RX * s, Jmag: r4.RY * s, Kmag: r4.RZ * s}
}

// QuatToR4AA recovers the axis-angle form of a unit quaternion. Near-identity rotations report
// the Z axis.
func QuatToR4AA(q quat.Number) R4AA {
	sinHalf := math.Hypot(math.Hypot(q.Imag, q.Jmag), q.Kmag)
	theta := 2 * math.Atan2(sinHalf, math.Abs(q.Real))
	if q.Real < 0 {
		theta = -theta
	}
	if sinHalf < 1e-6 {
		return R4AA{Theta: theta, RZ: 1}
	}
	return R4AA{Theta: theta, RX: q.Imag / sinHalf, RY: q.Jmag / sinHalf, RZ: q.Kmag / sinHalf}
}
