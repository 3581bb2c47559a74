// Package spatialmath defines poses and the rotation helpers used to move points between a world
// frame and a local frame.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a position and an orientation in a right-handed world frame. A zero Orientation is
// treated as the identity rotation.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{Orientation: Identity()}
}

// NewPose returns a pose at the given point with the given orientation, normalized.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	return Pose{Point: point, Orientation: Normalize(orientation)}
}

// NewPoseFromAxisAngle returns a pose at the given point rotated theta radians around axis.
func NewPoseFromAxisAngle(point, axis r3.Vector, theta float64) Pose {
	aa := &R4AA{Theta: theta, RX: axis.X, RY: axis.Y, RZ: axis.Z}
	return Pose{Point: point, Orientation: aa.ToQuat()}
}

// Transform maps a point expressed in this pose's local frame into the world frame.
func (p Pose) Transform(local r3.Vector) r3.Vector {
	return p.Point.Add(RotateVector(p.rotation(), local))
}

// InverseTransform maps a world point into this pose's local frame.
func (p Pose) InverseTransform(world r3.Vector) r3.Vector {
	return RotateVector(quat.Conj(p.rotation()), world.Sub(p.Point))
}

// Rotate applies only the orientation of the pose to a direction.
func (p Pose) Rotate(dir r3.Vector) r3.Vector {
	return RotateVector(p.rotation(), dir)
}

func (p Pose) rotation() quat.Number {
	return Normalize(p.Orientation)
}

func (p Pose) String() string {
	aa := QuatToR4AA(p.rotation())
	return fmt.Sprintf("{X:%.4f Y:%.4f Z:%.4f TH:%.4f AX:(%.3f, %.3f, %.3f)}",
		p.Point.X, p.Point.Y, p.Point.Z, aa.Theta, aa.RX, aa.RY, aa.RZ)
}

// Identity returns the quaternion representing no rotation.
func Identity() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize scales q to unit length. The zero quaternion normalizes to the identity.
func Normalize(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) {
		return Identity()
	}
	if norm == 1 {
		return q
	}
	return quat.Scale(1/norm, q)
}

// RotateVector rotates v by the unit quaternion q (q * v * q^-1).
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	pure := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	out := quat.Mul(quat.Mul(q, pure), quat.Conj(q))
	return r3.Vector{X: out.Imag, Y: out.Jmag, Z: out.Kmag}
}
