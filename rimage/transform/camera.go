package transform

import (
	"github.com/golang/geo/r3"

	"go.viam.com/scanfusion/spatialmath"
)

// Camera is a posed pinhole camera. The camera looks down its local +Z axis with +X to the right
// and +Y down the screen.
type Camera struct {
	Pose       spatialmath.Pose
	Intrinsics PinholeCameraIntrinsics
}

// Ray is a half line in world space. Direction has unit length.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// PointAt returns the point at distance d along the ray.
func (r Ray) PointAt(d float64) r3.Vector {
	return r.Origin.Add(r.Direction.Mul(d))
}

// ScreenWidth is the width of the screen in pixels.
func (c *Camera) ScreenWidth() int {
	return c.Intrinsics.Width
}

// ScreenHeight is the height of the screen in pixels.
func (c *Camera) ScreenHeight() int {
	return c.Intrinsics.Height
}

// WorldToScreen projects a world point to screen coordinates. depth is the distance along the
// viewing axis and is not positive for points behind the camera.
func (c *Camera) WorldToScreen(p r3.Vector) (sx, sy, depth float64) {
	local := c.Pose.InverseTransform(p)
	if local.Z <= 0 {
		return -1, -1, local.Z
	}
	sx, sy = c.Intrinsics.PointToPixel(local.X, local.Y, local.Z)
	return sx, sy, local.Z
}

// ScreenPointToRay returns the world ray from the camera through a screen point.
func (c *Camera) ScreenPointToRay(sx, sy float64) Ray {
	x, y, z := c.Intrinsics.PixelToPoint(sx, sy, 1)
	dir := c.Pose.Rotate(r3.Vector{X: x, Y: y, Z: z}).Normalize()
	return Ray{Origin: c.Pose.Point, Direction: dir}
}
