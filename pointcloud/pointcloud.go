// Package pointcloud defines the colored samples produced by a scan, the ordered cloud that holds
// them, and the grid quantization used to deduplicate approximate positions.
package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
)

// Sample is one colored position in a cloud. Samples are never mutated once appended.
type Sample struct {
	Position r3.Vector
	Color    color.NRGBA
}

// MetaData is data about what's stored in the cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns meta data with inverted bounds, ready for merging.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge grows the bounds to include v.
func (meta *MetaData) Merge(v r3.Vector) {
	meta.MaxX = math.Max(meta.MaxX, v.X)
	meta.MaxY = math.Max(meta.MaxY, v.Y)
	meta.MaxZ = math.Max(meta.MaxZ, v.Z)
	meta.MinX = math.Min(meta.MinX, v.X)
	meta.MinY = math.Min(meta.MinY, v.Y)
	meta.MinZ = math.Min(meta.MinZ, v.Z)
}

// Cloud is an ordered sequence of samples. Unlike a set, the same position may appear more than
// once; callers that need uniqueness quantize through an AcceptedSet first.
type Cloud struct {
	samples []Sample
	meta    MetaData
}

// New returns an empty cloud.
func New() *Cloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty cloud with room for size samples.
func NewWithPrealloc(size int) *Cloud {
	return &Cloud{samples: make([]Sample, 0, size), meta: NewMetaData()}
}

// NewFromArrays builds a cloud from parallel position and color slices. A nil colors slice colors
// every sample white.
func NewFromArrays(positions []r3.Vector, colors []color.NRGBA) *Cloud {
	cloud := NewWithPrealloc(len(positions))
	for i, p := range positions {
		c := color.NRGBA{255, 255, 255, 255}
		if i < len(colors) {
			c = colors[i]
		}
		cloud.Append(p, c)
	}
	return cloud
}

// Append adds a sample to the end of the cloud.
func (cloud *Cloud) Append(p r3.Vector, c color.NRGBA) {
	cloud.samples = append(cloud.samples, Sample{Position: p, Color: c})
	cloud.meta.Merge(p)
}

// Size returns the number of samples in the cloud.
func (cloud *Cloud) Size() int {
	return len(cloud.samples)
}

// At returns the i-th sample.
func (cloud *Cloud) At(i int) Sample {
	return cloud.samples[i]
}

// MetaData returns the bounds of the cloud.
func (cloud *Cloud) MetaData() MetaData {
	return cloud.meta
}

// Iterate calls fn for every sample in order until fn returns false.
func (cloud *Cloud) Iterate(fn func(i int, s Sample) bool) {
	for i, s := range cloud.samples {
		if !fn(i, s) {
			return
		}
	}
}

// Positions returns the ordered sample positions.
func (cloud *Cloud) Positions() []r3.Vector {
	out := make([]r3.Vector, len(cloud.samples))
	for i, s := range cloud.samples {
		out[i] = s.Position
	}
	return out
}

// Colors returns the ordered sample colors.
func (cloud *Cloud) Colors() []color.NRGBA {
	out := make([]color.NRGBA, len(cloud.samples))
	for i, s := range cloud.samples {
		out[i] = s.Color
	}
	return out
}

// Clone returns an independent copy of the cloud.
func (cloud *Cloud) Clone() *Cloud {
	samples := make([]Sample, len(cloud.samples))
	copy(samples, cloud.samples)
	return &Cloud{samples: samples, meta: cloud.meta}
}
