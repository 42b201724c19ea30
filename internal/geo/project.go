package geo

import (
	"errors"
	"fmt"
	"strings"

	proj "github.com/twpayne/go-proj/v10"
)

// ErrNoSourceCRS is returned when a bundle carries no .prj sidecar, so
// there is nothing to reproject from.
var ErrNoSourceCRS = errors.New("shapefile bundle has no .prj sidecar")

// Transform reprojects coordinates from a shapefile's source CRS (its
// .prj WKT) into a target EPSG code.
type Transform struct {
	pj *proj.PJ
}

// NewTransform builds the source-to-target transform. The caller owns
// the transform and must Close it.
func NewTransform(sourceWKT string, targetEPSG int) (*Transform, error) {
	if strings.TrimSpace(sourceWKT) == "" {
		return nil, ErrNoSourceCRS
	}
	pj, err := proj.NewCRSToCRS(sourceWKT, fmt.Sprintf("EPSG:%d", targetEPSG), nil)
	if err != nil {
		return nil, fmt.Errorf("build transform to EPSG:%d: %w", targetEPSG, err)
	}
	return &Transform{pj: pj}, nil
}

func (t *Transform) Close() {
	if t.pj != nil {
		t.pj.Destroy()
		t.pj = nil
	}
}

func (t *Transform) Point(p Point) (Point, error) {
	out, err := t.pj.Forward(proj.NewCoord(p.X, p.Y, 0, 0))
	if err != nil {
		return Point{}, fmt.Errorf("reproject point: %w", err)
	}
	return Point{X: out.X(), Y: out.Y()}, nil
}

func (t *Transform) Ring(r Ring) (Ring, error) {
	out := make(Ring, len(r))
	for i, p := range r {
		tp, err := t.Point(p)
		if err != nil {
			return nil, err
		}
		out[i] = tp
	}
	return out, nil
}

func (t *Transform) Polygon(p Polygon) (Polygon, error) {
	ext, err := t.Ring(p.Exterior)
	if err != nil {
		return Polygon{}, err
	}
	out := Polygon{Exterior: ext}
	for _, h := range p.Holes {
		th, err := t.Ring(h)
		if err != nil {
			return Polygon{}, err
		}
		out.Holes = append(out.Holes, th)
	}
	return out, nil
}
