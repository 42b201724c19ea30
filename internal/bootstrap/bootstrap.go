package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"parcelworks/internal/blob"
	"parcelworks/internal/config"
)

// Bucketer is the slice of the blob client bootstrap needs beyond the
// shared Store surface.
type Bucketer interface {
	EnsureBucket(ctx context.Context) error
}

// Run provisions everything the process needs before serving: the
// storage bucket, the worker scratch directory, and a startup log of
// which pre-supplied county bundles are available. It is idempotent
// and safe to run on every boot.
func Run(ctx context.Context, cfg *config.Config, blobs blob.Store, logger *slog.Logger) error {
	if cfg == nil || blobs == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	if b, ok := blobs.(Bucketer); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("bootstrap storage: %w", err)
		}
	}

	workDir := cfg.Worker.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "parcel_jobs")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("bootstrap workdir %s: %w", workDir, err)
	}

	counties, err := AvailableCounties(ctx, cfg, blobs)
	if err != nil {
		// The GIS area is optional; jobs can still run on uploaded bundles.
		logger.Warn("pre-supplied bundle listing failed", "region", cfg.GIS.Region, "error", err)
		return nil
	}
	logger.Info("pre-supplied county bundles",
		"region", cfg.GIS.Region,
		"count", len(counties),
		"counties", strings.Join(counties, ","))

	return nil
}

// AvailableCounties lists the counties with a current pre-supplied
// shapefile bundle in the configured region, derived from the blob
// keys under the GIS area.
func AvailableCounties(ctx context.Context, cfg *config.Config, blobs blob.Store) ([]string, error) {
	prefix := blob.CountyBundlePrefix(cfg.GIS.Region)
	keys, err := blobs.ListPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	counties := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		if !strings.EqualFold(filepath.Ext(name), ".zip") || strings.Contains(name, "/") {
			continue
		}
		counties = append(counties, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	return counties, nil
}
