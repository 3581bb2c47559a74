package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestCloudAppendAndBounds(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Size(), test.ShouldEqual, 0)

	red := color.NRGBA{255, 0, 0, 255}
	cloud.Append(r3.Vector{X: 1, Y: -2, Z: 3}, red)
	cloud.Append(r3.Vector{X: -1, Y: 2, Z: 0}, red)
	cloud.Append(r3.Vector{X: 1, Y: -2, Z: 3}, red)
	test.That(t, cloud.Size(), test.ShouldEqual, 3)
	test.That(t, cloud.At(2).Position, test.ShouldResemble, r3.Vector{X: 1, Y: -2, Z: 3})

	meta := cloud.MetaData()
	test.That(t, meta.MinX, test.ShouldEqual, -1)
	test.That(t, meta.MaxX, test.ShouldEqual, 1)
	test.That(t, meta.MinY, test.ShouldEqual, -2)
	test.That(t, meta.MaxZ, test.ShouldEqual, 3)

	clone := cloud.Clone()
	clone.Append(r3.Vector{}, red)
	test.That(t, cloud.Size(), test.ShouldEqual, 3)
	test.That(t, clone.Size(), test.ShouldEqual, 4)

	visited := 0
	cloud.Iterate(func(i int, s Sample) bool {
		visited++
		return i < 1
	})
	test.That(t, visited, test.ShouldEqual, 2)
}

func TestNewFromArrays(t *testing.T) {
	positions := []r3.Vector{{X: 1}, {Y: 1}}
	cloud := NewFromArrays(positions, []color.NRGBA{{1, 2, 3, 255}})
	test.That(t, cloud.Positions(), test.ShouldResemble, positions)
	test.That(t, cloud.Colors(), test.ShouldResemble, []color.NRGBA{{1, 2, 3, 255}, {255, 255, 255, 255}})
}
