// Package fake implements every capture collaborator from a recorded capture, so scans can be
// replayed without a device.
package fake

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/scanfusion/capture"
	"go.viam.com/scanfusion/rimage"
	"go.viam.com/scanfusion/rimage/transform"
)

// Event is one step of a recorded capture.
type Event struct {
	PointClouds *capture.PointCloudsChanged
	Planes      *capture.PlanesChanged
}

// Device is a fake capture device. A nil Frame makes CaptureFrame fail; a nil Depth makes
// AcquireDepthMap fail.
type Device struct {
	CameraModel *transform.Camera
	Frame       *rimage.Frame
	Depth       *DepthGrid
	Events      []Event

	mu            sync.Mutex
	nextID        int
	pointHandlers map[int]func(capture.PointCloudsChanged)
	planeHandlers map[int]func(capture.PlanesChanged)
	depthMode     capture.DepthMode
}

// Sources returns the device wired as every capture collaborator.
func (d *Device) Sources() capture.Sources {
	return capture.Sources{PointClouds: d, Planes: d, Depth: d, Camera: d}
}

// SubscribePointClouds registers a tracked point handler.
func (d *Device) SubscribePointClouds(handler func(capture.PointCloudsChanged)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pointHandlers == nil {
		d.pointHandlers = map[int]func(capture.PointCloudsChanged){}
	}
	id := d.nextID
	d.nextID++
	d.pointHandlers[id] = handler
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.pointHandlers, id)
	}
}

// SubscribePlanes registers a plane handler.
func (d *Device) SubscribePlanes(handler func(capture.PlanesChanged)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.planeHandlers == nil {
		d.planeHandlers = map[int]func(capture.PlanesChanged){}
	}
	id := d.nextID
	d.nextID++
	d.planeHandlers[id] = handler
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.planeHandlers, id)
	}
}

// Subscribers returns the number of live point cloud and plane subscriptions.
func (d *Device) Subscribers() (pointClouds, planes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pointHandlers), len(d.planeHandlers)
}

// Publish delivers one event to every current subscriber.
func (d *Device) Publish(ev Event) {
	d.mu.Lock()
	pointHandlers := make([]func(capture.PointCloudsChanged), 0, len(d.pointHandlers))
	for _, h := range d.pointHandlers {
		pointHandlers = append(pointHandlers, h)
	}
	planeHandlers := make([]func(capture.PlanesChanged), 0, len(d.planeHandlers))
	for _, h := range d.planeHandlers {
		planeHandlers = append(planeHandlers, h)
	}
	d.mu.Unlock()

	if ev.PointClouds != nil {
		for _, h := range pointHandlers {
			h(*ev.PointClouds)
		}
	}
	if ev.Planes != nil {
		for _, h := range planeHandlers {
			h(*ev.Planes)
		}
	}
}

// Replay publishes every recorded event in order, stopping early if ctx is done.
func (d *Device) Replay(ctx context.Context) error {
	for _, ev := range d.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.Publish(ev)
	}
	return nil
}

// RequestDepthMode records the requested mode.
func (d *Device) RequestDepthMode(ctx context.Context, mode capture.DepthMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depthMode = mode
	return nil
}

// DepthMode returns the last requested depth mode.
func (d *Device) DepthMode() capture.DepthMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depthMode
}

// AcquireDepthMap returns the recorded depth grid.
func (d *Device) AcquireDepthMap(ctx context.Context) (capture.DepthMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Depth == nil {
		return nil, capture.ErrDepthUnavailable
	}
	return d.Depth, nil
}

// CaptureFrame returns the recorded frame.
func (d *Device) CaptureFrame(ctx context.Context) (*rimage.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Frame == nil {
		return nil, capture.ErrFrameUnavailable
	}
	return d.Frame, nil
}

// Camera returns the recorded camera.
func (d *Device) Camera(ctx context.Context) (*transform.Camera, error) {
	if d.CameraModel == nil {
		return nil, errors.New("fake device has no camera")
	}
	return d.CameraModel, nil
}

// DepthGrid is a row-major grid of distances. NaN entries are misses; every other value is
// reported as is.
type DepthGrid struct {
	W, H      int
	Distances []float64
}

// NewUniformDepthGrid returns a grid where every cell reads dist.
func NewUniformDepthGrid(width, height int, dist float64) *DepthGrid {
	g := &DepthGrid{W: width, H: height, Distances: make([]float64, width*height)}
	for i := range g.Distances {
		g.Distances[i] = dist
	}
	return g
}

// Width returns the grid width.
func (g *DepthGrid) Width() int {
	return g.W
}

// Height returns the grid height.
func (g *DepthGrid) Height() int {
	return g.H
}

// DistanceAt returns the cell under the normalized coordinates.
func (g *DepthGrid) DistanceAt(ctx context.Context, nx, ny float64) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	x, y := int(nx*float64(g.W)), int(ny*float64(g.H))
	if x < 0 || y < 0 || x >= g.W || y >= g.H {
		return 0, false, nil
	}
	d := g.Distances[y*g.W+x]
	if math.IsNaN(d) {
		return 0, false, nil
	}
	return d, true, nil
}
