package jobs

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildPRCBundle(t *testing.T) {
	dir := t.TempDir()
	docsDir := filepath.Join(dir, "documents")
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"SMITH_100.pdf", "JONES_200.pdf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(docsDir, name), []byte("data"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	zipPath, err := buildPRCBundle(dir, docsDir)
	if err != nil {
		t.Fatalf("buildPRCBundle: %v", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	// Sorted, PDFs only, everything under PRC/.
	want := []string{"PRC/JONES_200.pdf", "PRC/SMITH_100.pdf"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], names[i])
		}
	}
}

func TestBuildPRCBundle_NoDocuments(t *testing.T) {
	dir := t.TempDir()

	zipPath, err := buildPRCBundle(dir, filepath.Join(dir, "documents"))
	if err != nil {
		t.Fatalf("buildPRCBundle: %v", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("empty archive must still be valid: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 0 {
		t.Fatalf("expected empty archive, got %d entries", len(zr.File))
	}
}
