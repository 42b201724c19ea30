package geo

import "sort"

// RepresentativePoint returns a point guaranteed to lie inside the
// polygon set. Labels anchored at the centroid drift outside concave
// parcels (flag lots, road strips), so instead a horizontal line is
// scanned through each member and the midpoint of the widest inside
// interval wins.
func RepresentativePoint(members []Polygon) (Point, bool) {
	var best Point
	bestWidth := -1.0
	for _, m := range members {
		p, w, ok := m.interiorPoint()
		if ok && w > bestWidth {
			best, bestWidth = p, w
		}
	}
	return best, bestWidth >= 0
}

// interiorPoint finds an inside point for one member and the width of
// the interval it sits on, used to rank members of a multipolygon.
func (p Polygon) interiorPoint() (Point, float64, bool) {
	if len(p.Exterior) == 0 {
		return Point{}, 0, false
	}

	minY, maxY := p.Exterior.yRange()
	if maxY <= minY {
		// Degenerate sliver; any vertex will do.
		return p.Exterior[0], 0, true
	}

	y := p.scanY(minY, maxY)
	xs := p.crossings(y)
	if len(xs) < 2 {
		return p.Exterior.vertexMean(), 0, true
	}
	sort.Float64s(xs)

	var best Point
	bestWidth := -1.0
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > bestWidth {
			bestWidth = w
			best = Point{X: (xs[i] + xs[i+1]) / 2, Y: y}
		}
	}
	return best, bestWidth, true
}

// scanY picks the scan ordinate: the bbox middle, nudged off any vertex
// ordinate because crossings exactly through vertices pair ambiguously.
func (p Polygon) scanY(minY, maxY float64) float64 {
	y := (minY + maxY) / 2
	step := (maxY - minY) / 1024
	for try := 0; try < 8 && p.hasVertexAt(y); try++ {
		y += step
	}
	return y
}

func (p Polygon) hasVertexAt(y float64) bool {
	for _, r := range p.rings() {
		for _, pt := range r {
			if pt.Y == y {
				return true
			}
		}
	}
	return false
}

// crossings collects the x ordinates where the horizontal line at y
// crosses any ring edge. The half-open comparison keeps the crossing
// count even, so sorted pairs delimit inside intervals (holes included).
func (p Polygon) crossings(y float64) []float64 {
	var xs []float64
	for _, r := range p.rings() {
		n := len(r)
		for i := 0; i < n; i++ {
			a, b := r[i], r[(i+1)%n]
			if (a.Y > y) == (b.Y > y) {
				continue
			}
			xs = append(xs, a.X+(y-a.Y)/(b.Y-a.Y)*(b.X-a.X))
		}
	}
	return xs
}

func (p Polygon) rings() []Ring {
	rings := make([]Ring, 0, len(p.Holes)+1)
	rings = append(rings, p.Exterior)
	return append(rings, p.Holes...)
}

func (r Ring) yRange() (minY, maxY float64) {
	minY, maxY = r[0].Y, r[0].Y
	for _, pt := range r[1:] {
		if pt.Y < minY {
			minY = pt.Y
		}
		if pt.Y > maxY {
			maxY = pt.Y
		}
	}
	return minY, maxY
}

func (r Ring) vertexMean() Point {
	var sx, sy float64
	for _, pt := range r {
		sx += pt.X
		sy += pt.Y
	}
	n := float64(len(r))
	return Point{X: sx / n, Y: sy / n}
}
