package jobs

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// buildPRCBundle zips every downloaded property record card under a
// top-level PRC/ directory, which is how the survey crews expect the
// archive to unpack. An empty documents dir still yields a valid,
// empty archive.
func buildPRCBundle(dir, docsDir string) (string, error) {
	zipPath := filepath.Join(dir, "PRC.zip")

	out, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create prc archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	entries, err := os.ReadDir(docsDir)
	if err != nil && !os.IsNotExist(err) {
		zw.Close()
		return "", fmt.Errorf("read documents dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := addToZip(zw, filepath.Join(docsDir, name), "PRC/"+name); err != nil {
			zw.Close()
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize prc archive: %w", err)
	}
	return zipPath, nil
}

func addToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
