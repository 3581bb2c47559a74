package fake

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/scanfusion/capture"
	"go.viam.com/scanfusion/rimage"
	"go.viam.com/scanfusion/rimage/transform"
	"go.viam.com/scanfusion/spatialmath"
)

// Recording is the on-disk form of a capture session.
type Recording struct {
	Camera CameraRecord  `json:"camera"`
	Frame  *FrameRecord  `json:"frame,omitempty"`
	Depth  *DepthRecord  `json:"depth,omitempty"`
	Events []EventRecord `json:"events"`
}

// PoseRecord is a position plus an axis-angle orientation in radians.
type PoseRecord struct {
	Position [3]float64 `json:"position"`
	Axis     [3]float64 `json:"axis"`
	Theta    float64    `json:"theta"`
}

// CameraRecord is a posed pinhole camera.
type CameraRecord struct {
	Pose       PoseRecord                        `json:"pose"`
	Intrinsics transform.PinholeCameraIntrinsics `json:"intrinsics"`
}

// FrameRecord is either an image file, relative to the recording, or a uniform color. Image files
// are scaled to the camera screen size.
type FrameRecord struct {
	Path   string `json:"path,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Color  [3]int `json:"color,omitempty"`
}

// DepthRecord is a row-major distance grid. When Distances is empty every cell reads Uniform.
// Negative distances in the file are stored as misses.
type DepthRecord struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Uniform   float64   `json:"uniform,omitempty"`
	Distances []float64 `json:"distances,omitempty"`
}

// PointCloudRecord is one tracked point cloud.
type PointCloudRecord struct {
	ID        string       `json:"id"`
	Positions [][3]float64 `json:"positions"`
}

// PlaneRecord is one detected plane.
type PlaneRecord struct {
	ID          string       `json:"id"`
	Pose        PoseRecord   `json:"pose"`
	HalfExtents [2]float64   `json:"half_extents"`
	Boundary    [][2]float64 `json:"boundary"`
}

// EventRecord is one notification of tracked points, planes, or both.
type EventRecord struct {
	PointClouds *struct {
		Added   []PointCloudRecord `json:"added"`
		Updated []PointCloudRecord `json:"updated"`
		Removed []string           `json:"removed"`
	} `json:"point_clouds,omitempty"`
	Planes *struct {
		Added   []PlaneRecord `json:"added"`
		Updated []PlaneRecord `json:"updated"`
		Removed []string      `json:"removed"`
	} `json:"planes,omitempty"`
}

// ReadRecording loads a recording file and builds a device from it.
func ReadRecording(path string) (*Device, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read recording %q", path)
	}
	var rec Recording
	if err := json5.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "cannot parse recording %q", path)
	}
	return rec.Device(filepath.Dir(path))
}

// Device builds a fake device. Relative frame paths are resolved against dir.
func (rec *Recording) Device(dir string) (*Device, error) {
	if err := rec.Camera.Intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	d := &Device{
		CameraModel: &transform.Camera{Pose: rec.Camera.Pose.toPose(), Intrinsics: rec.Camera.Intrinsics},
	}

	if rec.Frame != nil {
		frame, err := rec.Frame.load(dir, rec.Camera.Intrinsics)
		if err != nil {
			return nil, err
		}
		d.Frame = frame
	}

	if rec.Depth != nil {
		grid, err := rec.Depth.grid()
		if err != nil {
			return nil, err
		}
		d.Depth = grid
	}

	for _, ev := range rec.Events {
		var out Event
		if ev.PointClouds != nil {
			out.PointClouds = &capture.PointCloudsChanged{
				Added:   lo.Map(ev.PointClouds.Added, toTrackedPointCloud),
				Updated: lo.Map(ev.PointClouds.Updated, toTrackedPointCloud),
				Removed: toIDs(ev.PointClouds.Removed),
			}
		}
		if ev.Planes != nil {
			out.Planes = &capture.PlanesChanged{
				Added:   lo.Map(ev.Planes.Added, toSurfacePatch),
				Updated: lo.Map(ev.Planes.Updated, toSurfacePatch),
				Removed: toIDs(ev.Planes.Removed),
			}
		}
		d.Events = append(d.Events, out)
	}
	return d, nil
}

func (p PoseRecord) toPose() spatialmath.Pose {
	return spatialmath.NewPoseFromAxisAngle(vec(p.Position), vec(p.Axis), p.Theta)
}

// load reads the frame. Image files are scaled to the camera's screen size so that screen
// coordinates index the frame directly.
func (f *FrameRecord) load(dir string, screen transform.PinholeCameraIntrinsics) (*rimage.Frame, error) {
	if f.Path != "" {
		path := f.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		frame, err := rimage.ReadFrame(path)
		if err != nil {
			return nil, err
		}
		return frame.Resize(screen.Width, screen.Height)
	}
	c := color.NRGBA{uint8(f.Color[0]), uint8(f.Color[1]), uint8(f.Color[2]), 255}
	return rimage.NewUniformFrame(f.Width, f.Height, c)
}

func (r *DepthRecord) grid() (*DepthGrid, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, errors.Errorf("invalid depth size (%d, %d)", r.Width, r.Height)
	}
	if len(r.Distances) == 0 {
		return NewUniformDepthGrid(r.Width, r.Height, r.Uniform), nil
	}
	if len(r.Distances) != r.Width*r.Height {
		return nil, errors.Errorf("depth of size (%d, %d) needs %d distances, got %d",
			r.Width, r.Height, r.Width*r.Height, len(r.Distances))
	}
	return &DepthGrid{
		W: r.Width,
		H: r.Height,
		Distances: lo.Map(r.Distances, func(d float64, _ int) float64 {
			if d < 0 {
				return math.NaN()
			}
			return d
		}),
	}, nil
}

func toTrackedPointCloud(r PointCloudRecord, _ int) capture.TrackedPointCloud {
	return capture.TrackedPointCloud{
		ID:        capture.TrackableID(r.ID),
		Positions: lo.Map(r.Positions, func(p [3]float64, _ int) r3.Vector { return vec(p) }),
	}
}

func toSurfacePatch(r PlaneRecord, _ int) capture.SurfacePatch {
	return capture.SurfacePatch{
		ID:          capture.TrackableID(r.ID),
		Pose:        r.Pose.toPose(),
		HalfExtents: r2.Point{X: r.HalfExtents[0], Y: r.HalfExtents[1]},
		Boundary:    lo.Map(r.Boundary, func(p [2]float64, _ int) r2.Point { return r2.Point{X: p[0], Y: p[1]} }),
	}
}

func toIDs(ids []string) []capture.TrackableID {
	return lo.Map(ids, func(id string, _ int) capture.TrackableID { return capture.TrackableID(id) })
}

func vec(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
