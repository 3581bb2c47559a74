package fake

import (
	"context"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/scanfusion/capture"
	"go.viam.com/scanfusion/rimage"
)

const recordingJSON = `{
	// a camera one meter behind the origin
	camera: {
		pose: {position: [0, 0, -1]},
		intrinsics: {width_px: 64, height_px: 48, fx: 32, fy: 32, ppx: 32, ppy: 24},
	},
	frame: {width: 64, height: 48, color: [10, 20, 30]},
	depth: {width: 2, height: 1, distances: [1.5, -1]},
	events: [
		{point_clouds: {added: [{id: "a", positions: [[0, 0, 0], [1, 2, 3]]}]}},
		{planes: {added: [{
			id: "floor",
			pose: {position: [0, -1, 0]},
			half_extents: [0.5, 0.25],
			boundary: [[-0.5, -0.25], [0.5, -0.25], [0.5, 0.25], [-0.5, 0.25]],
		}]}},
		{point_clouds: {removed: ["a"]}},
	],
}`

func TestReadRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json5")
	test.That(t, os.WriteFile(path, []byte(recordingJSON), 0o600), test.ShouldBeNil)

	dev, err := ReadRecording(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.CameraModel.Pose.Point, test.ShouldResemble, r3.Vector{Z: -1})
	test.That(t, dev.CameraModel.Intrinsics.Width, test.ShouldEqual, 64)
	test.That(t, dev.Frame.At(5, 5), test.ShouldResemble, color.NRGBA{10, 20, 30, 255})
	test.That(t, len(dev.Events), test.ShouldEqual, 3)
	test.That(t, dev.Events[0].PointClouds.Added[0].Positions[1], test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, dev.Events[1].Planes.Added[0].HalfExtents, test.ShouldResemble, r2.Point{X: 0.5, Y: 0.25})
	test.That(t, dev.Events[1].Planes.Added[0].Boundary[2], test.ShouldResemble, r2.Point{X: 0.5, Y: 0.25})
	test.That(t, dev.Events[2].PointClouds.Removed, test.ShouldResemble, []capture.TrackableID{"a"})

	ctx := context.Background()
	d, ok, err := dev.Depth.DistanceAt(ctx, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d, test.ShouldEqual, 1.5)
	_, ok, err = dev.Depth.DistanceAt(ctx, 0.5, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok, _ = dev.Depth.DistanceAt(ctx, 1, 0)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestReadRecordingImageFrame(t *testing.T) {
	dir := t.TempDir()
	frame, err := rimage.NewUniformFrame(16, 12, color.NRGBA{200, 100, 50, 255})
	test.That(t, err, test.ShouldBeNil)
	f, err := os.Create(filepath.Join(dir, "frame.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, png.Encode(f, frame.Image()), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)

	path := filepath.Join(dir, "session.json5")
	test.That(t, os.WriteFile(path, []byte(`{
		camera: {intrinsics: {width_px: 32, height_px: 24, fx: 16, fy: 16, ppx: 16, ppy: 12}},
		frame: {path: "frame.png"},
		events: [],
	}`), 0o600), test.ShouldBeNil)

	dev, err := ReadRecording(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.Frame.Width(), test.ShouldEqual, 32)
	test.That(t, dev.Frame.Height(), test.ShouldEqual, 24)
	test.That(t, dev.Frame.At(31, 23), test.ShouldResemble, color.NRGBA{200, 100, 50, 255})
	test.That(t, dev.Depth, test.ShouldBeNil)
}

func TestReadRecordingErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadRecording(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	bad := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{camera: {intrinsics: {width_px: 0}}}`), 0o600), test.ShouldBeNil)
	_, err = ReadRecording(bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDeviceSubscriptions(t *testing.T) {
	dev := &Device{Events: []Event{
		{PointClouds: &capture.PointCloudsChanged{Added: []capture.TrackedPointCloud{{ID: "a"}}}},
		{Planes: &capture.PlanesChanged{Removed: []capture.TrackableID{"p"}}},
	}}
	var points, planes int
	unsubPoints := dev.SubscribePointClouds(func(capture.PointCloudsChanged) { points++ })
	unsubPlanes := dev.SubscribePlanes(func(capture.PlanesChanged) { planes++ })
	nPoints, nPlanes := dev.Subscribers()
	test.That(t, nPoints, test.ShouldEqual, 1)
	test.That(t, nPlanes, test.ShouldEqual, 1)

	test.That(t, dev.Replay(context.Background()), test.ShouldBeNil)
	test.That(t, points, test.ShouldEqual, 1)
	test.That(t, planes, test.ShouldEqual, 1)

	unsubPoints()
	unsubPlanes()
	test.That(t, dev.Replay(context.Background()), test.ShouldBeNil)
	test.That(t, points, test.ShouldEqual, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, dev.Replay(ctx), test.ShouldBeError, context.Canceled)

	_, err := dev.CaptureFrame(context.Background())
	test.That(t, err, test.ShouldBeError, capture.ErrFrameUnavailable)
	_, err = dev.AcquireDepthMap(context.Background())
	test.That(t, err, test.ShouldBeError, capture.ErrDepthUnavailable)

	test.That(t, dev.RequestDepthMode(context.Background(), capture.DepthModeBest), test.ShouldBeNil)
	test.That(t, dev.DepthMode(), test.ShouldEqual, capture.DepthModeBest)
	test.That(t, dev.DepthMode().String(), test.ShouldEqual, "best")
}
