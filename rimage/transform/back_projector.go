package transform

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/scanfusion/rimage"
)

// UnknownColor is returned for points that cannot be seen in the frame.
var UnknownColor = color.NRGBA{127, 127, 127, 255}

// Project returns the color of the frame pixel that p lands on when viewed through cam. Points
// behind the camera or outside the frame get UnknownColor.
func Project(p r3.Vector, cam *Camera, frame *rimage.Frame) color.NRGBA {
	if cam == nil || frame == nil {
		return UnknownColor
	}
	sx, sy, depth := cam.WorldToScreen(p)
	w, h := float64(frame.Width()), float64(frame.Height())
	if depth <= 0 || math.IsNaN(sx) || math.IsNaN(sy) || sx < 0 || sx >= w || sy < 0 || sy >= h {
		return UnknownColor
	}
	x := clamp(int(sx), 0, frame.Width()-1)
	y := clamp(int(sy), 0, frame.Height()-1)
	return frame.At(x, y)
}

// BackProjector colors points against one captured frame.
type BackProjector struct {
	Camera *Camera
	Frame  *rimage.Frame
}

// Color returns the color for p.
func (bp BackProjector) Color(p r3.Vector) color.NRGBA {
	return Project(p, bp.Camera, bp.Frame)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
