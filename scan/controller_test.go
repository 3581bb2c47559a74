package scan

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/scanfusion/capture"
	"go.viam.com/scanfusion/capture/fake"
	"go.viam.com/scanfusion/fusion"
	"go.viam.com/scanfusion/logging"
	"go.viam.com/scanfusion/ply"
	"go.viam.com/scanfusion/pointcloud"
	"go.viam.com/scanfusion/rimage"
	"go.viam.com/scanfusion/rimage/transform"
	"go.viam.com/scanfusion/spatialmath"
)

var blue = color.NRGBA{10, 20, 200, 255}

func setup(t *testing.T, formats []string, withFrame bool) (*Controller, *fake.Device, string, *clock.Mock) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	dev := &fake.Device{
		CameraModel: &transform.Camera{
			Pose: spatialmath.NewPose(r3.Vector{Z: -1}, spatialmath.Identity()),
			Intrinsics: transform.PinholeCameraIntrinsics{
				Width: 64, Height: 48, Fx: 40, Fy: 40, Ppx: 32, Ppy: 24,
			},
		},
	}
	if withFrame {
		frame, err := rimage.NewUniformFrame(64, 48, blue)
		test.That(t, err, test.ShouldBeNil)
		dev.Frame = frame
	}

	cfg := fusion.DefaultConfig()
	cfg.UseDepthData = false
	engine, err := fusion.NewEngine(cfg, dev.Sources(), logger)
	test.That(t, err, test.ShouldBeNil)
	engine.Subscribe()
	t.Cleanup(func() { test.That(t, engine.Close(context.Background()), test.ShouldBeNil) })

	mock := clock.NewMock()
	mock.Set(time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC))
	dir := filepath.Join(t.TempDir(), "out")
	ctrl, err := NewController(engine, dir, formats, mock, logger)
	test.That(t, err, test.ShouldBeNil)
	return ctrl, dev, dir, mock
}

func trackedPoints(positions ...r3.Vector) fake.Event {
	return fake.Event{PointClouds: &capture.PointCloudsChanged{
		Added: []capture.TrackedPointCloud{{ID: "cloud", Positions: positions}},
	}}
}

func TestToggleSavesScan(t *testing.T) {
	ctx := context.Background()
	ctrl, dev, dir, mock := setup(t, []string{"ply", "las", "pcd"}, true)

	scanning, err := ctrl.Toggle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scanning, test.ShouldBeTrue)

	dev.Publish(trackedPoints(r3.Vector{}, r3.Vector{X: 0.1, Y: -0.1, Z: 0.5}))

	scanning, err = ctrl.Toggle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scanning, test.ShouldBeFalse)

	base := filepath.Join(dir, "scan_20240305_140709")
	test.That(t, ctrl.LastSaved(), test.ShouldResemble, []string{base + ".ply", base + ".las", base + ".pcd"})

	doc, err := ply.Read(base + ".ply")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(doc.Vertices), test.ShouldEqual, 2)
	test.That(t, doc.Colors[0], test.ShouldResemble, blue)
	test.That(t, doc.Topology(), test.ShouldEqual, ply.TopologyPoints)

	las, err := pointcloud.NewFromFile(base+".las", logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, las.Size(), test.ShouldEqual, 2)

	pcd, err := pointcloud.NewFromFile(base+".pcd", logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pcd.Size(), test.ShouldEqual, 2)

	// a second scan a minute later gets its own name
	mock.Add(time.Minute)
	_, err = ctrl.Toggle(ctx)
	test.That(t, err, test.ShouldBeNil)
	dev.Publish(trackedPoints(r3.Vector{Z: 1}))
	_, err = ctrl.Toggle(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ctrl.LastSaved()[0], test.ShouldEqual, filepath.Join(dir, "scan_20240305_140809.ply"))
}

func TestEmptyScanNotSaved(t *testing.T) {
	ctx := context.Background()
	ctrl, _, dir, _ := setup(t, []string{"ply"}, true)

	_, err := ctrl.Toggle(ctx)
	test.That(t, err, test.ShouldBeNil)
	_, err = ctrl.Toggle(ctx)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, ctrl.LastSaved(), test.ShouldBeEmpty)
	_, err = os.Stat(dir)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestNoFrameNotSaved(t *testing.T) {
	ctx := context.Background()
	ctrl, dev, dir, _ := setup(t, []string{"ply"}, false)

	_, err := ctrl.Toggle(ctx)
	test.That(t, err, test.ShouldBeNil)
	dev.Publish(trackedPoints(r3.Vector{}))
	_, err = ctrl.Toggle(ctx)
	test.That(t, errors.Is(err, fusion.ErrNoFrame), test.ShouldBeTrue)

	test.That(t, ctrl.LastSaved(), test.ShouldBeEmpty)
	_, err = os.Stat(dir)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestStopWhileIdle(t *testing.T) {
	ctrl, _, _, _ := setup(t, []string{"ply"}, true)
	test.That(t, ctrl.Stop(context.Background()), test.ShouldBeNil)
	test.That(t, ctrl.LastSaved(), test.ShouldBeEmpty)
}

func TestNewControllerValidates(t *testing.T) {
	_, err := NewController(nil, "", []string{"ply"}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewController(nil, "out", []string{"obj"}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
