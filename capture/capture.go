// Package capture defines what the fusion engine consumes from a capture device: tracked feature
// points, detected planes, depth queries, and the current camera frame and pose.
package capture

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/scanfusion/rimage"
	"go.viam.com/scanfusion/rimage/transform"
	"go.viam.com/scanfusion/spatialmath"
)

var (
	// ErrFrameUnavailable is returned by a CameraSource that has no frame to give.
	ErrFrameUnavailable = errors.New("camera frame unavailable")
	// ErrDepthUnavailable is returned by a DepthSource that has no depth map to give.
	ErrDepthUnavailable = errors.New("depth map unavailable")
)

// TrackableID is the stable identifier a device assigns to a tracked point cloud or plane.
type TrackableID string

// TrackedPointCloud is the full current set of feature points for one trackable.
type TrackedPointCloud struct {
	ID        TrackableID
	Positions []r3.Vector
}

// PointCloudsChanged is one notification from a PointCloudFeed.
type PointCloudsChanged struct {
	Added   []TrackedPointCloud
	Updated []TrackedPointCloud
	Removed []TrackableID
}

// SurfacePatch is one detected flat region. The patch lies in the X/Z plane of Pose, HalfExtents
// are measured along local X and Z, and Boundary is a polygon in local (x, z) coordinates.
type SurfacePatch struct {
	ID          TrackableID
	Pose        spatialmath.Pose
	HalfExtents r2.Point
	Boundary    []r2.Point
}

// PlanesChanged is one notification from a PlaneFeed.
type PlanesChanged struct {
	Added   []SurfacePatch
	Updated []SurfacePatch
	Removed []TrackableID
}

// PointCloudFeed delivers tracked point changes. The returned function unsubscribes.
type PointCloudFeed interface {
	SubscribePointClouds(handler func(PointCloudsChanged)) (unsubscribe func())
}

// PlaneFeed delivers plane changes. The returned function unsubscribes.
type PlaneFeed interface {
	SubscribePlanes(handler func(PlanesChanged)) (unsubscribe func())
}

// DepthMode is a requested depth capture quality.
type DepthMode int

// Depth modes, from off to the most accurate.
const (
	DepthModeDisabled DepthMode = iota
	DepthModeFast
	DepthModeMedium
	DepthModeBest
)

func (m DepthMode) String() string {
	switch m {
	case DepthModeDisabled:
		return "disabled"
	case DepthModeFast:
		return "fast"
	case DepthModeMedium:
		return "medium"
	case DepthModeBest:
		return "best"
	default:
		return "unknown"
	}
}

// DepthMap is a snapshot of the environment depth.
type DepthMap interface {
	Width() int
	Height() int
	// DistanceAt returns the distance from the camera to the surface seen at normalized screen
	// coordinates (nx, ny). ok is false when nothing was hit.
	DistanceAt(ctx context.Context, nx, ny float64) (dist float64, ok bool, err error)
}

// DepthSource produces depth map snapshots.
type DepthSource interface {
	RequestDepthMode(ctx context.Context, mode DepthMode) error
	AcquireDepthMap(ctx context.Context) (DepthMap, error)
}

// CameraSource produces the current color frame and the camera it was seen through.
type CameraSource interface {
	CaptureFrame(ctx context.Context) (*rimage.Frame, error)
	Camera(ctx context.Context) (*transform.Camera, error)
}

// Sources groups every collaborator a scan may use. Any field may be nil; the matching
// ingestion path then contributes nothing.
type Sources struct {
	PointClouds PointCloudFeed
	Planes      PlaneFeed
	Depth       DepthSource
	Camera      CameraSource
}
