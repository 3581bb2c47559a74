// Package transform projects between world space and camera screen space.
package transform

import (
	"os"

	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// ErrNoIntrinsics is returned for missing or unusable camera intrinsics.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with the reason the intrinsics were rejected.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics describe a perspective projection onto a Width by Height screen.
// Distances are in pixels.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid returns an error wrapping ErrNoIntrinsics unless the screen and focal lengths are
// positive and the principal point is not negative.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics not set")
	}
	switch {
	case params.Width <= 0 || params.Height <= 0:
		return errors.Wrapf(ErrNoIntrinsics, "screen size (%d, %d)", params.Width, params.Height)
	case params.Fx <= 0 || params.Fy <= 0:
		return errors.Wrapf(ErrNoIntrinsics, "focal length (%v, %v)", params.Fx, params.Fy)
	case params.Ppx < 0 || params.Ppy < 0:
		return errors.Wrapf(ErrNoIntrinsics, "principal point (%v, %v)", params.Ppx, params.Ppy)
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile reads and validates intrinsics from a JSON5 file.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read intrinsics")
	}
	var params PinholeCameraIntrinsics
	if err := json5.Unmarshal(data, &params); err != nil {
		return nil, errors.Wrapf(err, "cannot parse intrinsics %q", jsonPath)
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return &params, nil
}

// PixelToPoint lifts screen position (x, y) to the camera frame point at depth z.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	return (x - params.Ppx) / params.Fx * z, (y - params.Ppy) / params.Fy * z, z
}

// PointToPixel projects a camera frame point onto the screen without rounding. A point at zero
// depth maps to (-1, -1), which every bounds check rejects.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z == 0 {
		return -1, -1
	}
	return params.Fx*x/z + params.Ppx, params.Fy*y/z + params.Ppy
}
