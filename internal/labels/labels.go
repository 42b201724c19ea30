// Package labels turns a scraped parcel workbook and a county
// shapefile bundle into CAD-ready artifacts: a DXF with boundary
// polylines and anchored label text, plus a labels.csv side file.
package labels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"parcelworks/internal/dxf"
	"parcelworks/internal/geo"
	"parcelworks/internal/parcel"
)

// Drawing constants. Text height is in drawing units of the target CRS.
const (
	BoundaryLayer = "PARCEL_BOUNDARIES_NOTES"
	LabelLayer    = "PARCEL_LABELS"
	TextHeight    = 5
)

// ErrJoinEmpty is returned when no scraped parcel id matches any
// geometry key, even after the alternate-id fallback.
var ErrJoinEmpty = errors.New("join produced zero records")

// Input names everything the export needs.
type Input struct {
	WorkbookPath string // scraped parcel workbook
	BundlePath   string // shapefile bundle archive
	TargetEPSG   int
	OutDir       string // receives labels.dxf and labels.csv
	ScratchDir   string // bundle extraction area
	Logger       *slog.Logger
}

// Result reports what the export produced.
type Result struct {
	DXFPath  string
	CSVPath  string
	Features int
}

// Export runs the pipeline: extract, load, join, place, reproject,
// emit. The join key on the geometry side is the canonical parcel key;
// the record side joins on its parcel-id column, falling back to the
// alternate-id column when nothing overlaps.
func Export(in Input) (*Result, error) {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "labels")

	shpPath, err := geo.ExtractBundle(in.BundlePath, in.ScratchDir)
	if err != nil {
		return nil, err
	}
	layer, err := geo.LoadParcels(shpPath)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded parcel layer",
		"features", len(layer.Features), "key_column", layer.KeyColumn)

	headers, rows, err := parcel.ReadWorkbook(in.WorkbookPath)
	if err != nil {
		return nil, err
	}

	recordByKey, err := joinRecords(layer, headers, rows)
	if err != nil {
		return nil, err
	}

	tr, err := geo.NewTransform(layer.SourceWKT, in.TargetEPSG)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	ownerCol := columnNamed(headers, "Owner Name", "Name")
	instCol := columnNamed(headers, "Document Number", "Document/Instrument")

	doc := dxf.New()
	doc.Layer(BoundaryLayer)
	doc.Layer(LabelLayer)

	if err := os.MkdirAll(in.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	csvPath := filepath.Join(in.OutDir, "labels.csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return nil, fmt.Errorf("create labels.csv: %w", err)
	}
	defer csvFile.Close()

	cw := csv.NewWriter(csvFile)
	if err := cw.Write([]string{"PARCELID_JOIN", "X", "Y", "LABEL"}); err != nil {
		return nil, fmt.Errorf("write labels.csv: %w", err)
	}

	features := 0
	for _, f := range layer.Features {
		key := parcel.CanonicalKey(f.ID)
		row, ok := recordByKey[key]
		if !ok {
			continue
		}

		at, ok := geo.RepresentativePoint(f.Members)
		if !ok {
			logger.Warn("no representative point", "parcel_id", f.ID)
			continue
		}
		at, err := tr.Point(at)
		if err != nil {
			return nil, err
		}

		for _, m := range f.Members {
			exterior, err := tr.Ring(m.Exterior)
			if err != nil {
				return nil, err
			}
			doc.Polyline(BoundaryLayer, ringPoints(exterior), true)
		}

		label := Compose(key, cell(rows[row], ownerCol), cell(rows[row], instCol))
		doc.MText(LabelLayer, dxf.Point{X: at.X, Y: at.Y}, label, TextHeight, dxf.AttachMiddleCenter)

		if err := cw.Write([]string{key, formatOrdinate(at.X), formatOrdinate(at.Y), label}); err != nil {
			return nil, fmt.Errorf("write labels.csv: %w", err)
		}
		features++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write labels.csv: %w", err)
	}
	if err := csvFile.Close(); err != nil {
		return nil, fmt.Errorf("close labels.csv: %w", err)
	}

	dxfPath := filepath.Join(in.OutDir, "labels.dxf")
	if err := doc.Save(dxfPath); err != nil {
		return nil, err
	}

	logger.Info("label export complete", "features", features)
	return &Result{DXFPath: dxfPath, CSVPath: csvPath, Features: features}, nil
}

// joinRecords maps canonical geometry keys to workbook row indexes.
// The record side is matched on its parcel-id column; when that yields
// zero overlap and an alternate-id column exists, the alternate values
// are tried before giving up with ErrJoinEmpty.
func joinRecords(layer *geo.Layer, headers []string, rows [][]string) (map[string]int, error) {
	keyCol := recordKeyColumn(headers)
	if keyCol < 0 {
		return nil, errors.New("no parcel id column in workbook")
	}

	join := matchup(layer, rows, keyCol)
	if len(join) == 0 {
		if altCol := columnNamed(headers, "Alternate ID"); altCol >= 0 {
			join = matchup(layer, rows, altCol)
		}
	}
	if len(join) == 0 {
		return nil, ErrJoinEmpty
	}
	return join, nil
}

// matchup indexes workbook rows by the given column (first occurrence
// wins) and keeps only keys present among the geometry features.
func matchup(layer *geo.Layer, rows [][]string, col int) map[string]int {
	byKey := map[string]int{}
	for i, row := range rows {
		k := strings.TrimSpace(cell(row, col))
		if k == "" {
			continue
		}
		if _, dup := byKey[k]; !dup {
			byKey[k] = i
		}
	}

	join := map[string]int{}
	for _, f := range layer.Features {
		key := parcel.CanonicalKey(f.ID)
		if i, ok := byKey[key]; ok {
			join[key] = i
		}
	}
	return join
}

// Compose builds the label text: parcel key, upper-cased owner, and an
// instrument reference. Owner and instrument lines are omitted when
// missing; a literal "nan" instrument (artifact of earlier spreadsheet
// tooling) counts as missing. Instruments holding a slash are
// book/page references.
func Compose(key, owner, instrument string) string {
	lines := []string{"PARCEL# " + key}

	if o := strings.TrimSpace(owner); o != "" {
		lines = append(lines, strings.ToUpper(o))
	}

	inst := strings.TrimSpace(instrument)
	if inst != "" && !strings.EqualFold(inst, "nan") {
		if book, page, found := strings.Cut(inst, "/"); found {
			lines = append(lines, fmt.Sprintf("BK. %s, PG. %s",
				strings.TrimSpace(book), strings.TrimSpace(page)))
		} else {
			lines = append(lines, "INST# "+inst)
		}
	}
	return strings.Join(lines, "\n")
}

// recordKeyColumn finds the scraped file's parcel-id column: the first
// header containing both "parcel" and "id".
func recordKeyColumn(headers []string) int {
	for i, h := range headers {
		l := strings.ToLower(h)
		if strings.Contains(l, "parcel") && strings.Contains(l, "id") {
			return i
		}
	}
	return -1
}

// columnNamed finds the first header equal to any candidate, case
// insensitively.
func columnNamed(headers []string, candidates ...string) int {
	for _, c := range candidates {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), c) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func ringPoints(r geo.Ring) []dxf.Point {
	pts := make([]dxf.Point, len(r))
	for i, p := range r {
		pts[i] = dxf.Point{X: p.X, Y: p.Y}
	}
	return pts
}

func formatOrdinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
