package cli

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/scanfusion/logging"
	"go.viam.com/scanfusion/ply"
)

const recording = `{
	camera: {
		pose: {position: [0, 0, -1]},
		intrinsics: {width_px: 64, height_px: 48, fx: 32, fy: 32, ppx: 32, ppy: 24},
	},
	frame: {width: 64, height: 48, color: [10, 20, 30]},
	events: [
		{point_clouds: {added: [{id: "a", positions: [[0, 0, 0], [0.1, 0.1, 0.5]]}]}},
		{point_clouds: {added: [{id: "b", positions: [[-0.1, 0, 0.2]]}]}},
	],
}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(&out, logging.NewTestLogger(t))
	err := app.RunContext(context.Background(), append([]string{"scanfuse"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, path, contents string) string {
	t.Helper()
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestFuse(t *testing.T) {
	dir := t.TempDir()
	rec := writeFile(t, filepath.Join(dir, "session.json5"), recording)
	cfg := writeFile(t, filepath.Join(dir, "scanfuse.json5"), `{output: {formats: ["ply", "pcd"]}}`)
	outDir := filepath.Join(dir, "scans")

	out, err := run(t, "fuse", "--recording", rec, "--config", cfg, "--out", outDir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "fused 3 points (tracked 3, plane 0, depth 0")
	test.That(t, out, test.ShouldContainSubstring, "saved ")

	plys, err := filepath.Glob(filepath.Join(outDir, "scan_*.ply"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(plys), test.ShouldEqual, 1)
	pcds, err := filepath.Glob(filepath.Join(outDir, "scan_*.pcd"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(pcds), test.ShouldEqual, 1)

	doc, err := ply.Read(plys[0])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(doc.Vertices), test.ShouldEqual, 3)
	test.That(t, doc.Vertices[2], test.ShouldResemble, r3.Vector{X: -0.1, Y: 0, Z: 0.2})
	test.That(t, doc.Colors[0], test.ShouldResemble, color.NRGBA{10, 20, 30, 255})
}

func TestFuseErrors(t *testing.T) {
	_, err := run(t, "fuse")
	test.That(t, err, test.ShouldNotBeNil)

	dir := t.TempDir()
	_, err = run(t, "fuse", "--recording", filepath.Join(dir, "missing.json5"))
	test.That(t, err, test.ShouldNotBeNil)

	rec := writeFile(t, filepath.Join(dir, "session.json5"), recording)
	cfg := writeFile(t, filepath.Join(dir, "bad.json5"), `{output: {formats: ["obj"]}}`)
	_, err = run(t, "fuse", "--recording", rec, "--config", cfg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported format")
}

func TestInfoAndConvert(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	test.That(t, os.MkdirAll(sub, 0o750), test.ShouldBeNil)

	mesh := &ply.Document{
		Vertices:  []r3.Vector{{}, {X: 1}, {Y: 1}},
		Colors:    []color.NRGBA{{1, 2, 3, 255}, {4, 5, 6, 255}, {7, 8, 9, 255}},
		Triangles: [][3]uint32{{0, 1, 2}},
	}
	meshPath := filepath.Join(sub, "mesh.ply")
	test.That(t, ply.WriteDocument(meshPath, mesh), test.ShouldBeNil)
	pointsPath := filepath.Join(dir, "points.ply")
	test.That(t, ply.Write(pointsPath, []r3.Vector{{Z: 1}}, nil), test.ShouldBeNil)

	out, err := run(t, "info", dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, meshPath)
	test.That(t, out, test.ShouldContainSubstring, pointsPath)
	test.That(t, strings.Index(out, meshPath), test.ShouldBeLessThan, strings.Index(out, pointsPath))
	test.That(t, out, test.ShouldContainSubstring, "triangles")
	test.That(t, out, test.ShouldContainSubstring, "points")
	test.That(t, out, test.ShouldContainSubstring, "uint16")
	test.That(t, strings.ToLower(out), test.ShouldContainSubstring, "2 files")

	_, err = run(t, "info")
	test.That(t, err, test.ShouldNotBeNil)

	copyPath := filepath.Join(dir, "copy.ply")
	out, err = run(t, "convert", meshPath, copyPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote 3 vertices")
	copied, err := ply.Read(copyPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, copied, test.ShouldResemble, mesh)

	lasPath := filepath.Join(dir, "mesh.las")
	_, err = run(t, "convert", meshPath, lasPath)
	test.That(t, err, test.ShouldBeNil)
	backPath := filepath.Join(dir, "back.ply")
	_, err = run(t, "convert", lasPath, backPath)
	test.That(t, err, test.ShouldBeNil)
	back, err := ply.Read(backPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(back.Vertices), test.ShouldEqual, 3)
	test.That(t, back.Triangles, test.ShouldBeEmpty)

	_, err = run(t, "convert", meshPath, filepath.Join(dir, "mesh.obj"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = run(t, "convert", meshPath)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWatchDir(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loaded := make(chan ply.Loaded, 16)
	done := make(chan error, 1)
	go func() {
		done <- watchDir(ctx, dir, logging.NewTestLogger(t), func(l ply.Loaded) {
			select {
			case loaded <- l:
			default:
			}
		})
	}()

	// the watcher may not be registered yet, so keep rewriting, slower than the quiet period,
	// until it reports the file
	path := filepath.Join(dir, "new.ply")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "not a cloud")
	ticker := time.NewTicker(3 * watchQuietPeriod)
	defer ticker.Stop()
	var got ply.Loaded
	for got.Document == nil {
		test.That(t, ply.Write(path, []r3.Vector{{X: 1}, {X: 2}}, nil), test.ShouldBeNil)
		select {
		case got = <-loaded:
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatal("watcher never reported the file")
		}
	}
	test.That(t, got.Path, test.ShouldEqual, path)
	test.That(t, len(got.Document.Vertices), test.ShouldEqual, 2)

	cancel()
	test.That(t, <-done, test.ShouldEqual, context.Canceled)
}

func TestDescribe(t *testing.T) {
	line := describe(ply.Loaded{Path: "a.ply", Document: &ply.Document{Vertices: []r3.Vector{{}}}})
	test.That(t, line, test.ShouldEqual, "a.ply\t1 vertex\t0 triangles\tno colors\tpoints\tuint16")
}
