// Package dxf writes a minimal AutoCAD 2000 DXF document: named layers,
// closed lightweight polylines, and multi-line text entities. The
// output carries only the sections CAD tools need to import label
// drawings (header, layer table, entities).
package dxf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MTEXT attachment points (group code 71).
const (
	AttachTopLeft      = 1
	AttachMiddleCenter = 5
)

// Point is a 2D drawing coordinate.
type Point struct {
	X, Y float64
}

// Document accumulates layers and entities and serializes them as
// tagged DXF. Entities keep insertion order.
type Document struct {
	layers    []string
	layerSeen map[string]bool
	entities  []entity
}

type entity interface {
	writeTags(w *tagWriter)
}

func New() *Document {
	d := &Document{layerSeen: map[string]bool{}}
	// Layer 0 must exist in every DXF layer table.
	d.Layer("0")
	return d
}

// Layer registers a layer. Registering the same name twice is a no-op;
// entity constructors register their layer automatically.
func (d *Document) Layer(name string) {
	if d.layerSeen[name] {
		return
	}
	d.layerSeen[name] = true
	d.layers = append(d.layers, name)
}

// Polyline adds a lightweight polyline. Fewer than two points is a
// no-op.
func (d *Document) Polyline(layer string, pts []Point, closed bool) {
	if len(pts) < 2 {
		return
	}
	d.Layer(layer)
	d.entities = append(d.entities, &polyline{layer: layer, points: pts, closed: closed})
}

// MText adds a multi-line text entity anchored at pt. Newlines in text
// become MTEXT paragraph breaks.
func (d *Document) MText(layer string, at Point, text string, height float64, attachment int) {
	d.Layer(layer)
	d.entities = append(d.entities, &mtext{
		layer:      layer,
		at:         at,
		text:       text,
		height:     height,
		attachment: attachment,
	})
}

// Save writes the document to path.
func (d *Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dxf: %w", err)
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write dxf: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dxf: %w", err)
	}
	return nil
}

// WriteTo serializes the document.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	tw := newTagWriter(w)

	tw.pair(0, "SECTION")
	tw.pair(2, "HEADER")
	tw.pair(9, "$ACADVER")
	tw.pair(1, "AC1015")
	tw.pair(9, "$HANDSEED")
	tw.pair(5, "FFFF")
	tw.pair(0, "ENDSEC")

	tw.pair(0, "SECTION")
	tw.pair(2, "TABLES")
	tw.pair(0, "TABLE")
	tw.pair(2, "LAYER")
	tw.pair(5, tw.nextHandle())
	tw.pair(100, "AcDbSymbolTable")
	tw.pair(70, strconv.Itoa(len(d.layers)))
	for _, name := range d.layers {
		tw.pair(0, "LAYER")
		tw.pair(5, tw.nextHandle())
		tw.pair(100, "AcDbSymbolTableRecord")
		tw.pair(100, "AcDbLayerTableRecord")
		tw.pair(2, name)
		tw.pair(70, "0")
		tw.pair(62, "7")
		tw.pair(6, "Continuous")
	}
	tw.pair(0, "ENDTAB")
	tw.pair(0, "ENDSEC")

	tw.pair(0, "SECTION")
	tw.pair(2, "ENTITIES")
	for _, e := range d.entities {
		e.writeTags(tw)
	}
	tw.pair(0, "ENDSEC")
	tw.pair(0, "EOF")

	return tw.flush()
}

type polyline struct {
	layer  string
	points []Point
	closed bool
}

func (p *polyline) writeTags(w *tagWriter) {
	w.pair(0, "LWPOLYLINE")
	w.pair(5, w.nextHandle())
	w.pair(100, "AcDbEntity")
	w.pair(8, p.layer)
	w.pair(100, "AcDbPolyline")
	w.pair(90, strconv.Itoa(len(p.points)))
	if p.closed {
		w.pair(70, "1")
	} else {
		w.pair(70, "0")
	}
	for _, pt := range p.points {
		w.pair(10, formatFloat(pt.X))
		w.pair(20, formatFloat(pt.Y))
	}
}

type mtext struct {
	layer      string
	at         Point
	text       string
	height     float64
	attachment int
}

func (m *mtext) writeTags(w *tagWriter) {
	w.pair(0, "MTEXT")
	w.pair(5, w.nextHandle())
	w.pair(100, "AcDbEntity")
	w.pair(8, m.layer)
	w.pair(100, "AcDbMText")
	w.pair(10, formatFloat(m.at.X))
	w.pair(20, formatFloat(m.at.Y))
	w.pair(30, "0")
	w.pair(40, formatFloat(m.height))
	w.pair(71, strconv.Itoa(m.attachment))
	w.text(encodeMText(m.text))
}

// encodeMText escapes DXF control characters and turns newlines into
// MTEXT paragraph breaks.
func encodeMText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", `\P`)
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// tagWriter emits DXF group-code/value pairs, deferring errors until
// flush so entity emitters stay unconditional.
type tagWriter struct {
	w      *bufio.Writer
	n      int64
	err    error
	handle int
}

func newTagWriter(w io.Writer) *tagWriter {
	return &tagWriter{w: bufio.NewWriter(w)}
}

func (t *tagWriter) pair(code int, value string) {
	if t.err != nil {
		return
	}
	n, err := fmt.Fprintf(t.w, "%d\n%s\n", code, value)
	t.n += int64(n)
	t.err = err
}

// text writes a string value, chunking overlong content into group 3
// continuation tags ahead of the final group 1 tag.
func (t *tagWriter) text(s string) {
	for len(s) > 250 {
		t.pair(3, s[:250])
		s = s[250:]
	}
	t.pair(1, s)
}

// nextHandle hands out sequential hex entity handles.
func (t *tagWriter) nextHandle() string {
	t.handle++
	return strings.ToUpper(strconv.FormatInt(int64(t.handle), 16))
}

func (t *tagWriter) flush() (int64, error) {
	if t.err != nil {
		return t.n, t.err
	}
	if err := t.w.Flush(); err != nil {
		return t.n, err
	}
	return t.n, nil
}
