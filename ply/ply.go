// Package ply reads and writes ASCII PLY meshes and point clouds.
package ply

import (
	"fmt"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

var (
	// ErrMalformed is wrapped by every error describing a file that cannot be parsed.
	ErrMalformed = errors.New("malformed ply")
	// ErrValidation is returned when a document cannot be written as given.
	ErrValidation = errors.New("invalid ply document")
)

// MalformedError locates a parse failure. Line is 1-based, or 0 when the problem is not tied to
// one line.
type MalformedError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedError) Error() string {
	where := e.Path
	if where == "" {
		where = "<stream>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d: %s", ErrMalformed, where, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformed, where, e.Reason)
}

// Unwrap makes errors.Is(err, ErrMalformed) hold.
func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

// Topology is how a document's indices connect its vertices.
type Topology int

// Topologies.
const (
	TopologyPoints Topology = iota
	TopologyTriangles
)

func (t Topology) String() string {
	if t == TopologyTriangles {
		return "triangles"
	}
	return "points"
}

// IndexFormat is the narrowest index width that can address every vertex.
type IndexFormat int

// Index formats.
const (
	IndexUInt16 IndexFormat = iota
	IndexUInt32
)

func (f IndexFormat) String() string {
	if f == IndexUInt32 {
		return "uint32"
	}
	return "uint16"
}

// Document is one mesh or point set. Colors is nil when the source has no colors, otherwise it
// parallels Vertices. Triangles use clockwise winding.
type Document struct {
	Vertices  []r3.Vector
	Colors    []color.NRGBA
	Triangles [][3]uint32
}

// HasColors reports whether the document carries per-vertex colors.
func (d *Document) HasColors() bool {
	return d.Colors != nil
}

// Topology returns TopologyPoints when there are no triangles.
func (d *Document) Topology() Topology {
	if len(d.Triangles) == 0 {
		return TopologyPoints
	}
	return TopologyTriangles
}

// IndexFormat returns IndexUInt32 once there are more vertices than a uint16 can address.
func (d *Document) IndexFormat() IndexFormat {
	if len(d.Vertices) > math.MaxUint16 {
		return IndexUInt32
	}
	return IndexUInt16
}

// Indices returns the flattened triangle indices, or one index per vertex for a point set.
func (d *Document) Indices() []uint32 {
	if d.Topology() == TopologyPoints {
		return d.PointIndices()
	}
	out := make([]uint32, 0, 3*len(d.Triangles))
	for _, tri := range d.Triangles {
		out = append(out, tri[0], tri[1], tri[2])
	}
	return out
}

// Indices16 is Indices narrowed to uint16. It fails for documents that need IndexUInt32.
func (d *Document) Indices16() ([]uint16, error) {
	if d.IndexFormat() != IndexUInt16 {
		return nil, errors.Errorf("%d vertices need 32 bit indices", len(d.Vertices))
	}
	wide := d.Indices()
	out := make([]uint16, len(wide))
	for i, idx := range wide {
		out[i] = uint16(idx)
	}
	return out, nil
}

// PointIndices returns 0..len(Vertices)-1.
func (d *Document) PointIndices() []uint32 {
	out := make([]uint32, len(d.Vertices))
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

// Validate checks that the document can be written.
func (d *Document) Validate() error {
	if len(d.Vertices) == 0 {
		return errors.Wrap(ErrValidation, "no vertices")
	}
	if d.Colors != nil && len(d.Colors) != len(d.Vertices) {
		return errors.Wrapf(ErrValidation, "%d colors for %d vertices", len(d.Colors), len(d.Vertices))
	}
	for i, v := range d.Vertices {
		if math.IsNaN(v.X+v.Y+v.Z) || math.IsInf(v.X+v.Y+v.Z, 0) {
			return errors.Wrapf(ErrValidation, "vertex %d is not finite", i)
		}
	}
	for i, tri := range d.Triangles {
		for _, idx := range tri {
			if int(idx) >= len(d.Vertices) {
				return errors.Wrapf(ErrValidation, "triangle %d references vertex %d of %d", i, idx, len(d.Vertices))
			}
		}
	}
	return nil
}
