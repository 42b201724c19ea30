package geo

import (
	"archive/zip"
	"errors"
	"os"
	"path"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
)

// pointInside is an even-odd containment check used to verify label
// points without trusting the code under test's interval pairing.
func pointInside(p Polygon, pt Point) bool {
	inside := false
	for _, x := range p.crossings(pt.Y) {
		if x < pt.X {
			inside = !inside
		}
	}
	return inside
}

func cwSquare(x0, y0, size float64) Ring {
	return Ring{
		{x0, y0}, {x0, y0 + size}, {x0 + size, y0 + size}, {x0 + size, y0}, {x0, y0},
	}
}

func TestRepresentativePointConcave(t *testing.T) {
	// U-shaped parcel: the centroid sits in the notch, outside the
	// polygon.
	u := Polygon{Exterior: Ring{
		{0, 0}, {0, 10}, {3, 10}, {3, 3}, {7, 3}, {7, 10}, {10, 10}, {10, 0}, {0, 0},
	}}

	pt, ok := RepresentativePoint([]Polygon{u})
	if !ok {
		t.Fatal("expected a representative point")
	}
	if !pointInside(u, pt) {
		t.Fatalf("point %+v is outside the polygon", pt)
	}
	if pt.X > 3 && pt.X < 7 && pt.Y > 3 {
		t.Fatalf("point %+v landed in the notch", pt)
	}
}

func TestRepresentativePointAvoidsHole(t *testing.T) {
	donut := Polygon{
		Exterior: cwSquare(0, 0, 10),
		Holes: []Ring{
			{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
		},
	}

	pt, ok := RepresentativePoint([]Polygon{donut})
	if !ok {
		t.Fatal("expected a representative point")
	}
	if !pointInside(donut, pt) {
		t.Fatalf("point %+v is outside the polygon", pt)
	}
	if pt.X > 4 && pt.X < 6 && pt.Y > 4 && pt.Y < 6 {
		t.Fatalf("point %+v landed in the hole", pt)
	}
}

func TestRepresentativePointPicksWidestMember(t *testing.T) {
	members := []Polygon{
		{Exterior: cwSquare(100, 100, 2)},
		{Exterior: cwSquare(0, 0, 10)},
	}

	pt, ok := RepresentativePoint(members)
	if !ok {
		t.Fatal("expected a representative point")
	}
	if !pointInside(members[1], pt) {
		t.Fatalf("point %+v should be inside the larger member", pt)
	}
}

func TestRepresentativePointEmpty(t *testing.T) {
	if _, ok := RepresentativePoint(nil); ok {
		t.Fatal("expected no point for empty member list")
	}
}

func TestGroupMembers(t *testing.T) {
	hole := Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	rings := []Ring{cwSquare(0, 0, 10), hole, cwSquare(20, 20, 5)}

	members := groupMembers(rings)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if len(members[0].Holes) != 1 {
		t.Fatalf("expected the hole attached to the first member, got %d", len(members[0].Holes))
	}
	if len(members[1].Holes) != 0 {
		t.Fatalf("expected no holes on the second member, got %d", len(members[1].Holes))
	}
}

func TestPolygonMembersSplitsParts(t *testing.T) {
	ringA := cwSquare(0, 0, 10)
	ringB := cwSquare(20, 0, 4)

	var pts []shp.Point
	for _, r := range [][]Point{ringA, ringB} {
		for _, p := range r {
			pts = append(pts, shp.Point{X: p.X, Y: p.Y})
		}
	}
	poly := &shp.Polygon{
		NumParts:  2,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0, int32(len(ringA))},
		Points:    pts,
	}

	members := polygonMembers(poly)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if len(members[0].Exterior) != 5 || len(members[1].Exterior) != 5 {
		t.Fatalf("unexpected ring sizes %d and %d", len(members[0].Exterior), len(members[1].Exterior))
	}
}

// writeParcelShapefile writes a polygon shapefile with one key column.
func writeParcelShapefile(t *testing.T, dir, name, keyColumn string, ids []string, rings []Ring) string {
	t.Helper()
	pathSHP := filepath.Join(dir, name)
	w, err := shp.Create(pathSHP, shp.POLYGON)
	if err != nil {
		t.Fatalf("create shapefile: %v", err)
	}
	w.SetFields([]shp.Field{shp.StringField(keyColumn, 50)})
	for i, id := range ids {
		var pts []shp.Point
		for _, p := range rings[i] {
			pts = append(pts, shp.Point{X: p.X, Y: p.Y})
		}
		w.Write((*shp.Polygon)(shp.NewPolyLine([][]shp.Point{pts})))
		w.WriteAttribute(i, 0, id)
	}
	w.Close()
	return pathSHP
}

func TestLoadParcels(t *testing.T) {
	dir := t.TempDir()
	ids := []string{"1400816928-08-22-442-023.000-025", "28-08-22-442-024.000-025"}
	shpPath := writeParcelShapefile(t, dir, "Parcels.shp", "IDPARCEL", ids, []Ring{
		cwSquare(0, 0, 10), cwSquare(20, 0, 10),
	})
	wkt := `PROJCS["NAD83 / Indiana West (ftUS)",GEOGCS["NAD83"]]`
	if err := os.WriteFile(filepath.Join(dir, "Parcels.prj"), []byte(wkt+"\n"), 0o644); err != nil {
		t.Fatalf("write prj: %v", err)
	}

	layer, err := LoadParcels(shpPath)
	if err != nil {
		t.Fatalf("load parcels: %v", err)
	}
	if layer.KeyColumn != "IDPARCEL" {
		t.Fatalf("expected key column IDPARCEL, got %q", layer.KeyColumn)
	}
	if layer.SourceWKT != wkt {
		t.Fatalf("expected prj wkt, got %q", layer.SourceWKT)
	}
	if len(layer.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(layer.Features))
	}
	if layer.Features[0].ID != ids[0] {
		t.Fatalf("expected id %q, got %q", ids[0], layer.Features[0].ID)
	}
	if len(layer.Features[0].Members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(layer.Features[0].Members))
	}
	if n := len(layer.Features[0].Members[0].Exterior); n != 5 {
		t.Fatalf("expected 5 ring vertices, got %d", n)
	}
}

func TestLoadParcelsNoKeyColumn(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeParcelShapefile(t, dir, "Parcels.shp", "OWNER", []string{"DOE"}, []Ring{
		cwSquare(0, 0, 10),
	})

	_, err := LoadParcels(shpPath)
	if !errors.Is(err, ErrNoKeyColumn) {
		t.Fatalf("expected ErrNoKeyColumn, got %v", err)
	}
}

// zipDir zips every file in srcDir under an archive prefix.
func zipDir(t *testing.T, srcDir, zipPath, prefix string) {
	t.Helper()
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(srcDir, e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		w, err := zw.Create(path.Join(prefix, e.Name()))
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close zip file: %v", err)
	}
}

func TestExtractBundle(t *testing.T) {
	srcDir := t.TempDir()
	writeParcelShapefile(t, srcDir, "Parcels.shp", "PARCELID", []string{"28-08-22-442-023.000-025"}, []Ring{
		cwSquare(0, 0, 10),
	})

	zipPath := filepath.Join(t.TempDir(), "county.zip")
	zipDir(t, srcDir, zipPath, "greene/Current")

	destDir := t.TempDir()
	shpPath, err := ExtractBundle(zipPath, destDir)
	if err != nil {
		t.Fatalf("extract bundle: %v", err)
	}
	if filepath.Base(shpPath) != "Parcels.shp" {
		t.Fatalf("unexpected shapefile path %q", shpPath)
	}

	layer, err := LoadParcels(shpPath)
	if err != nil {
		t.Fatalf("load extracted parcels: %v", err)
	}
	if len(layer.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(layer.Features))
	}
}

func TestExtractBundleNoShapefile(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "readme.txt"), []byte("nothing here"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	zipPath := filepath.Join(t.TempDir(), "empty.zip")
	zipDir(t, srcDir, zipPath, "data")

	_, err := ExtractBundle(zipPath, t.TempDir())
	if !errors.Is(err, ErrShapefileMissing) {
		t.Fatalf("expected ErrShapefileMissing, got %v", err)
	}
}

func TestExtractBundleRejectsTraversal(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("../evil.txt")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	w.Write([]byte("nope"))
	zw.Close()
	f.Close()

	if _, err := ExtractBundle(zipPath, t.TempDir()); err == nil {
		t.Fatal("expected error for traversal entry")
	}
}

func TestFindParcelShapefile(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested", "deeper")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Case-insensitive match, recursive.
	if err := os.WriteFile(filepath.Join(sub, "PARCEL.SHP"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	found, err := FindParcelShapefile(root)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if filepath.Base(found) != "PARCEL.SHP" {
		t.Fatalf("unexpected match %q", found)
	}

	if _, err := FindParcelShapefile(t.TempDir()); !errors.Is(err, ErrShapefileMissing) {
		t.Fatalf("expected ErrShapefileMissing, got %v", err)
	}
}
