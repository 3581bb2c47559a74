package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// GridKey identifies a grid cell. Its components are integer multiples of the owning Grid's
// resolution, so keys produced at different cell sizes of the same Grid compare directly.
type GridKey struct {
	I, J, K int64
}

// Grid quantizes positions at a base resolution. Coarser cells are expressed as whole multiples of
// that resolution.
type Grid struct {
	Resolution float64
}

// NewGrid returns a grid with the given base resolution.
func NewGrid(resolution float64) (Grid, error) {
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return Grid{}, errors.Errorf("grid resolution must be positive, got %v", resolution)
	}
	return Grid{Resolution: resolution}, nil
}

// Quantize rounds each coordinate of p independently to the nearest multiple of cellSize and
// returns the resulting cell as a key in resolution units. cellSize is snapped to the nearest
// whole multiple of the resolution (at least one).
func (g Grid) Quantize(p r3.Vector, cellSize float64) GridKey {
	multiple := g.cellMultiple(cellSize)
	cell := g.Resolution * float64(multiple)
	q := func(v float64) int64 {
		return int64(math.Round(v/cell)) * multiple
	}
	return GridKey{I: q(p.X), J: q(p.Y), K: q(p.Z)}
}

// Position returns the snapped position of a key.
func (g Grid) Position(k GridKey) r3.Vector {
	return r3.Vector{
		X: float64(k.I) * g.Resolution,
		Y: float64(k.J) * g.Resolution,
		Z: float64(k.K) * g.Resolution,
	}
}

func (g Grid) cellMultiple(cellSize float64) int64 {
	multiple := int64(math.Round(cellSize / g.Resolution))
	if multiple < 1 {
		return 1
	}
	return multiple
}

// Origin records which ingestion path admitted a key.
type Origin uint8

const (
	// OriginPlane marks keys admitted from plane sampling.
	OriginPlane Origin = iota + 1
	// OriginDepth marks keys admitted from depth reprojection.
	OriginDepth
)

func (o Origin) String() string {
	switch o {
	case OriginPlane:
		return "plane"
	case OriginDepth:
		return "depth"
	default:
		return "unknown"
	}
}

// AcceptedSet is the insertion-ordered set of grid keys already admitted to a cloud. A key is
// admitted at most once; later inserts of the same key keep the first origin.
type AcceptedSet struct {
	index map[GridKey]Origin
	order []GridKey
}

// NewAcceptedSet returns an empty set.
func NewAcceptedSet() *AcceptedSet {
	return &AcceptedSet{index: map[GridKey]Origin{}}
}

// Insert admits k and reports whether it was new.
func (s *AcceptedSet) Insert(k GridKey, origin Origin) bool {
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = origin
	s.order = append(s.order, k)
	return true
}

// Contains reports whether k was already admitted.
func (s *AcceptedSet) Contains(k GridKey) bool {
	_, ok := s.index[k]
	return ok
}

// Len returns the number of admitted keys.
func (s *AcceptedSet) Len() int {
	return len(s.order)
}

// Keys returns the keys admitted with the given origin, in insertion order.
func (s *AcceptedSet) Keys(origin Origin) []GridKey {
	return lo.Filter(s.order, func(k GridKey, _ int) bool {
		return s.index[k] == origin
	})
}

// Clear removes every key.
func (s *AcceptedSet) Clear() {
	s.index = map[GridKey]Origin{}
	s.order = nil
}

// Clone returns an independent copy of the set.
func (s *AcceptedSet) Clone() *AcceptedSet {
	out := &AcceptedSet{index: make(map[GridKey]Origin, len(s.index)), order: make([]GridKey, len(s.order))}
	copy(out.order, s.order)
	for k, v := range s.index {
		out.index[k] = v
	}
	return out
}
