// Package geo loads county parcel shapefiles and prepares their
// geometry for label placement: ring grouping, interior points, and
// reprojection into the county's working CRS.
package geo

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
)

// ErrShapefileMissing is returned when a bundle holds no parcel
// shapefile.
var ErrShapefileMissing = errors.New("no parcel shapefile in bundle")

// ErrNoKeyColumn is returned when the shapefile has no parcel id
// attribute column to join on.
var ErrNoKeyColumn = errors.New("no parcel key column in shapefile")

// Point is a 2D coordinate in the layer's CRS.
type Point struct {
	X, Y float64
}

// Ring is a closed vertex sequence. Shapefile rings repeat the first
// vertex at the end; Ring keeps whatever the file had.
type Ring []Point

// Polygon is one member of a (multi)polygon: an exterior ring and its
// holes.
type Polygon struct {
	Exterior Ring
	Holes    []Ring
}

// Feature is one shapefile record: the raw parcel id attribute and the
// polygon members.
type Feature struct {
	ID      string
	Members []Polygon
}

// Layer is a loaded parcel shapefile.
type Layer struct {
	Features  []Feature
	KeyColumn string
	// SourceWKT is the .prj sidecar's CRS definition; empty when the
	// bundle shipped without one.
	SourceWKT string
}

// ExtractBundle unzips a shapefile bundle into destDir and returns the
// path of the parcel shapefile found inside.
func ExtractBundle(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open shapefile bundle: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractOne(f, destDir); err != nil {
			return "", err
		}
	}
	return FindParcelShapefile(destDir)
}

func extractOne(f *zip.File, destDir string) error {
	if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
		return fmt.Errorf("unsafe path %q in bundle", f.Name)
	}
	target := filepath.Join(destDir, filepath.FromSlash(f.Name))

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s in bundle: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// FindParcelShapefile locates Parcels.shp or Parcel.shp (case
// insensitive, recursive) under root.
func FindParcelShapefile(root string) (string, error) {
	var plural, singular []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(d.Name()) {
		case "parcels.shp":
			plural = append(plural, path)
		case "parcel.shp":
			singular = append(singular, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan bundle: %w", err)
	}
	if len(plural) > 0 {
		return plural[0], nil
	}
	if len(singular) > 0 {
		return singular[0], nil
	}
	return "", ErrShapefileMissing
}

// LoadParcels reads a parcel shapefile: polygonal records keyed by the
// first attribute column whose name contains "parcel", plus the .prj
// sidecar when present. Records with no key value or no polygon
// geometry are skipped.
func LoadParcels(shpPath string) (*Layer, error) {
	r, err := shp.Open(shpPath)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	fields := r.Fields()
	keyIdx := parcelKeyColumn(fields)
	if keyIdx < 0 {
		return nil, ErrNoKeyColumn
	}

	layer := &Layer{
		KeyColumn: fields[keyIdx].String(),
		SourceWKT: readPrj(shpPath),
	}
	for r.Next() {
		row, shape := r.Shape()
		members := polygonMembers(shape)
		if len(members) == 0 {
			continue
		}
		id := strings.TrimSpace(r.ReadAttribute(row, keyIdx))
		if id == "" {
			continue
		}
		layer.Features = append(layer.Features, Feature{ID: id, Members: members})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	return layer, nil
}

// parcelKeyColumn picks the join column: the first attribute whose name
// contains "parcel" (IDPARCEL, PARCELID, Parcel_No, ...).
func parcelKeyColumn(fields []shp.Field) int {
	for i, f := range fields {
		if strings.Contains(strings.ToLower(f.String()), "parcel") {
			return i
		}
	}
	return -1
}

// polygonMembers splits a shape's rings and groups them into polygon
// members. Non-polygonal shapes yield nil.
func polygonMembers(shape shp.Shape) []Polygon {
	var parts []int32
	var pts []shp.Point

	switch s := shape.(type) {
	case *shp.Polygon:
		parts, pts = s.Parts, s.Points
	case *shp.PolygonZ:
		parts, pts = s.Parts, s.Points
	case *shp.PolygonM:
		parts, pts = s.Parts, s.Points
	default:
		return nil
	}
	return groupMembers(splitRings(parts, pts))
}

func splitRings(parts []int32, pts []shp.Point) []Ring {
	if len(parts) == 0 && len(pts) > 0 {
		parts = []int32{0}
	}
	var rings []Ring
	for i, start := range parts {
		end := len(pts)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) >= end {
			continue
		}
		ring := make(Ring, 0, end-int(start))
		for _, p := range pts[start:end] {
			ring = append(ring, Point{X: p.X, Y: p.Y})
		}
		if len(ring) >= 3 {
			rings = append(rings, ring)
		}
	}
	return rings
}

// groupMembers assembles rings into members. Shapefile exterior rings
// wind clockwise and holes counter-clockwise, with holes following
// their exterior in part order.
func groupMembers(rings []Ring) []Polygon {
	var members []Polygon
	for _, r := range rings {
		if r.clockwise() || len(members) == 0 {
			members = append(members, Polygon{Exterior: r})
			continue
		}
		last := &members[len(members)-1]
		last.Holes = append(last.Holes, r)
	}
	return members
}

// signedArea is the shoelace sum: negative for clockwise rings in a
// y-up coordinate system. The closing duplicate vertex, when present,
// contributes nothing.
func (r Ring) signedArea() float64 {
	if len(r) < 3 {
		return 0
	}
	var sum float64
	for i := range r {
		j := (i + 1) % len(r)
		sum += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return sum / 2
}

func (r Ring) clockwise() bool { return r.signedArea() < 0 }

// readPrj loads the projection sidecar next to the .shp. Counties ship
// bundles with inconsistent extension casing, so the directory is
// scanned when the two common spellings miss. Missing sidecars yield
// ""; reprojection reports the problem when it is actually needed.
func readPrj(shpPath string) string {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, cand := range []string{base + ".prj", base + ".PRJ"} {
		if data, err := os.ReadFile(cand); err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	dir := filepath.Dir(shpPath)
	stem := strings.ToLower(filepath.Base(base))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".prj") && strings.TrimSuffix(name, ".prj") == stem {
			if data, err := os.ReadFile(filepath.Join(dir, e.Name())); err == nil {
				return strings.TrimSpace(string(data))
			}
		}
	}
	return ""
}
