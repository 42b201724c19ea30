package docfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"parcelworks/internal/config"
	"parcelworks/internal/pacing"
)

func fastClient(respectRobots bool) *Client {
	pacer := pacing.New(config.PacingConfig{
		PageMinMs: 1, PageMaxMs: 2,
		DocumentMinMs: 1, DocumentMaxMs: 2,
		ThinkEvery: 1000, ThinkMinMs: 1, ThinkMaxMs: 2,
	})
	return New(config.ScrapeConfig{RespectRobots: respectRobots}, pacer, nil)
}

func TestDownloadWritesFileAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 fake card"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "cards", "DOE_28-08-22.pdf")

	c := fastClient(false)
	if err := c.Download(context.Background(), srv.URL+"/doc.pdf", dest); err != nil {
		t.Fatalf("download: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "%PDF-1.4 fake card" {
		t.Fatalf("unexpected content %q", data)
	}

	// No temp files may survive the rename.
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".download-") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "card.pdf")
	if err := os.WriteFile(dest, []byte("already here"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	c := fastClient(false)
	if err := c.Download(context.Background(), srv.URL+"/doc.pdf", dest); err != nil {
		t.Fatalf("download: %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no network I/O for existing file, got %d requests", n)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "already here" {
		t.Fatalf("existing file was overwritten: %q", data)
	}
}

func TestDownloadReplacesEmptyFile(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "card.pdf")
	if err := os.WriteFile(dest, nil, 0o644); err != nil {
		t.Fatalf("seed empty file: %v", err)
	}

	c := fastClient(false)
	if err := c.Download(context.Background(), srv.URL+"/doc.pdf", dest); err != nil {
		t.Fatalf("download: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected 1 request for empty file, got %d", n)
	}
}

func TestDownloadNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "card.pdf")
	c := fastClient(false)
	err := c.Download(context.Background(), srv.URL+"/missing.pdf", dest)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file on failure, stat err %v", statErr)
	}
}

func TestDownloadRobotsGate(t *testing.T) {
	var robotsHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		robotsHits.Add(1)
		w.Write([]byte("User-agent: *\nDisallow: /tgis/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("card"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	c := fastClient(true)

	err := c.Download(context.Background(), srv.URL+"/tgis/custom.aspx", filepath.Join(dir, "a.pdf"))
	if !errors.Is(err, ErrRobotsDisallowed) {
		t.Fatalf("expected ErrRobotsDisallowed, got %v", err)
	}

	if err := c.Download(context.Background(), srv.URL+"/open/card.pdf", filepath.Join(dir, "b.pdf")); err != nil {
		t.Fatalf("allowed path should download: %v", err)
	}

	// robots.txt is cached per host.
	if n := robotsHits.Load(); n != 1 {
		t.Fatalf("expected 1 robots.txt fetch, got %d", n)
	}
}
