package fusion

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestPointInPolygon(t *testing.T) {
	// an L shape missing its upper right quadrant
	ell := []r2.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 2}}
	for _, tc := range []struct {
		p      r2.Point
		inside bool
	}{
		{r2.Point{X: 0.5, Y: 0.5}, true},
		{r2.Point{X: 1.5, Y: 0.5}, true},
		{r2.Point{X: 0.5, Y: 1.5}, true},
		{r2.Point{X: 1.5, Y: 1.5}, false},
		{r2.Point{X: -0.5, Y: 0.5}, false},
		{r2.Point{X: 0.5, Y: 2.5}, false},
	} {
		test.That(t, pointInPolygon(tc.p, ell), test.ShouldEqual, tc.inside)
	}
	test.That(t, pointInPolygon(r2.Point{}, nil), test.ShouldBeFalse)
}
