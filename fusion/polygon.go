package fusion

import "github.com/golang/geo/r2"

// pointInPolygon applies the even-odd crossing rule with a ray cast toward +X.
func pointInPolygon(p r2.Point, polygon []r2.Point) bool {
	inside := false
	j := len(polygon) - 1
	for i := range polygon {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}
