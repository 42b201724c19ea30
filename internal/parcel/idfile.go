package parcel

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrTooManyIdentifiers is returned when the input list exceeds the
// caller's maximum.
var ErrTooManyIdentifiers = errors.New("too many parcel identifiers")

// ReadIdentifiers parses the uploaded parcel list. The format follows
// the file extension in name: plain text (one identifier per line, #
// comments), CSV, or XLSX. For the tabular formats the identifier
// column is the one whose header contains both "parcel" and "id"
// case-insensitively, falling back to the first column with every row
// treated as data. Identifiers are trimmed, de-duplicated preserving
// first occurrence, and capped at max.
func ReadIdentifiers(r io.Reader, name string, max int) ([]string, error) {
	var raw []string
	var err error

	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", "":
		raw, err = readLines(r)
	case ".csv":
		raw, err = readCSVColumn(r)
	case ".xlsx":
		raw, err = readXLSXColumn(r)
	default:
		return nil, fmt.Errorf("unsupported parcel file type %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	var ids []string
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if max > 0 && len(ids) > max {
		return nil, fmt.Errorf("%w: %d identifiers, limit %d", ErrTooManyIdentifiers, len(ids), max)
	}
	return ids, nil
}

// ReadIdentifiersFile is ReadIdentifiers over a local path.
func ReadIdentifiersFile(path string, max int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parcel file: %w", err)
	}
	defer f.Close()
	return ReadIdentifiers(f, filepath.Base(path), max)
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read parcel lines: %w", err)
	}
	return out, nil
}

func readCSVColumn(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read parcel csv: %w", err)
	}
	return columnValues(rows), nil
}

func readXLSXColumn(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read parcel spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("parcel spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read parcel spreadsheet rows: %w", err)
	}
	return columnValues(rows), nil
}

// columnValues picks the identifier column out of tabular rows.
func columnValues(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}

	col, dataFrom := 0, 0
	for i, header := range rows[0] {
		h := strings.ToLower(header)
		if strings.Contains(h, "parcel") && strings.Contains(h, "id") {
			col, dataFrom = i, 1
			break
		}
	}

	var out []string
	for _, row := range rows[dataFrom:] {
		if col < len(row) {
			out = append(out, row[col])
		}
	}
	return out
}
