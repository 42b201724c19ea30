package parcel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"parcelworks/internal/model"
)

// SheetName is the single sheet of the enriched workbook.
const SheetName = "Parcels"

// WorkbookColumns is the fixed column order of the enriched workbook.
// The label pipeline reads it back by these names, so order changes
// are additive only.
var WorkbookColumns = []string{
	"Parcel ID",
	"Alternate ID",
	"Owner Name",
	"Owner Address",
	"Owner City",
	"Owner State",
	"Owner Zip",
	"Parcel Address",
	"Parcel City",
	"Parcel State",
	"Parcel Zip",
	"Legal Description",
	"Latest Deed Date",
	"Document Number",
	"Deed Type",
	"Status",
	"Notes",
}

func recordValues(r *model.ParcelRecord) []string {
	return []string{
		r.ParcelID,
		r.AlternateID,
		r.OwnerName,
		r.OwnerAddress.Street,
		r.OwnerAddress.City,
		r.OwnerAddress.State,
		r.OwnerAddress.Zip,
		r.SitusAddress.Street,
		r.SitusAddress.City,
		r.SitusAddress.State,
		r.SitusAddress.Zip,
		r.LegalDescription,
		r.Transfer.Date,
		r.Transfer.Instrument,
		r.Transfer.DeedCode,
		string(r.Status),
		r.Note,
	}
}

// WriteWorkbook writes the enriched records to an xlsx file at path.
// Called after every few parcels for partial saves and once at the end,
// so it always rewrites the whole file.
func WriteWorkbook(path string, records []*model.ParcelRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("workbook sheet: %w", err)
	}

	for i, col := range WorkbookColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("workbook header cell: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, col); err != nil {
			return fmt.Errorf("workbook header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("workbook style: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(WorkbookColumns), 1)
	if err := f.SetCellStyle(SheetName, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("workbook style: %w", err)
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("workbook panes: %w", err)
	}

	_ = f.SetColWidth(SheetName, "A", "B", 26)
	_ = f.SetColWidth(SheetName, "C", "K", 22)
	_ = f.SetColWidth(SheetName, "L", "L", 42)
	_ = f.SetColWidth(SheetName, "M", "Q", 16)

	for ri, rec := range records {
		for ci, v := range recordValues(rec) {
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(ci+1, ri+2)
			if err != nil {
				return fmt.Errorf("workbook cell: %w", err)
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("workbook cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("workbook save: %w", err)
	}
	return nil
}

// ReadWorkbook loads an enriched workbook back as a header row plus
// data rows. Trailing empty cells may be absent from rows; callers
// index defensively.
func ReadWorkbook(path string) (headers []string, rows [][]string, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read workbook rows: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}
