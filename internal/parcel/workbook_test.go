package parcel

import (
	"path/filepath"
	"testing"

	"parcelworks/internal/model"
)

func TestWorkbookWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels_enriched.xlsx")

	rec := &model.ParcelRecord{
		ParcelID:         "28-08-22-442-023.000-025",
		OwnerName:        "SMITH, JANE A",
		OwnerAddress:     model.Address{Street: "123 MAIN ST", City: "BLOOMFIELD", State: "IN", Zip: "47424"},
		LegalDescription: "PT NW 22-8-8 1.5A",
		Transfer:         model.Transfer{Date: "01/02/2018", Instrument: "2018/3706", DeedCode: "WD"},
		Status:           model.LookupOK,
	}
	if err := WriteWorkbook(path, []*model.ParcelRecord{rec}); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	headers, rows, err := ReadWorkbook(path)
	if err != nil {
		t.Fatalf("ReadWorkbook: %v", err)
	}
	if len(headers) != len(WorkbookColumns) {
		t.Fatalf("got %d header columns, want %d", len(headers), len(WorkbookColumns))
	}
	if headers[0] != "Parcel ID" || headers[13] != "Document Number" {
		t.Fatalf("unexpected headers: %v", headers)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d data rows, want 1", len(rows))
	}
	if rows[0][0] != rec.ParcelID {
		t.Fatalf("row parcel id = %q, want %q", rows[0][0], rec.ParcelID)
	}

	// Partial saves rewrite the file; a second write must not append.
	if err := WriteWorkbook(path, []*model.ParcelRecord{rec}); err != nil {
		t.Fatalf("WriteWorkbook rewrite: %v", err)
	}
	_, rows, err = ReadWorkbook(path)
	if err != nil {
		t.Fatalf("ReadWorkbook after rewrite: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rewrite appended rows: got %d, want 1", len(rows))
	}
}
