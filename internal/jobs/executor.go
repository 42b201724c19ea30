package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"parcelworks/internal/blob"
	"parcelworks/internal/browser"
	"parcelworks/internal/config"
	"parcelworks/internal/docfetch"
	"parcelworks/internal/labels"
	"parcelworks/internal/metrics"
	"parcelworks/internal/model"
	"parcelworks/internal/pacing"
	"parcelworks/internal/parcel"
	"parcelworks/internal/portal"
	"parcelworks/internal/store"
)

// Store is the slice of the job repository the worker uses.
type Store interface {
	ClaimNextPending(ctx context.Context) (*model.ParcelJob, error)
	GetJobStatus(ctx context.Context, id string) (model.Status, error)
	SetTotalParcels(ctx context.Context, id string, total int) error
	SetStep(ctx context.Context, id, step string) error
	UpdateProgress(ctx context.Context, id string, completed, failed int, step string) error
	MarkCompleted(ctx context.Context, id, excelURL, dxfURL, prcURL string) (bool, error)
	MarkFailed(ctx context.Context, id, msg string) error
	ResetOrphans(ctx context.Context) (int64, error)
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.ParcelJob, error)
	DeleteJob(ctx context.Context, id string) error
}

var _ Store = (*store.Store)(nil)

// fetcher downloads linked documents politely.
type fetcher interface {
	Download(ctx context.Context, rawURL, destPath string) error
}

// errCancelled stops the pipeline when a cancel issued through the API
// is observed mid-flight. The cancel endpoint already stamped the row,
// so the worker just walks away.
var errCancelled = errors.New("job cancelled")

// Executor claims pending jobs one at a time and runs the research
// pipeline end to end: stage inputs, scrape the portal parcel by
// parcel, export labels, bundle record cards, publish artifacts. A
// deployment runs exactly one executor so county portals only ever see
// a single polite session.
type Executor struct {
	cfg    *config.Config
	store  Store
	blobs  blob.Store
	pacer  *pacing.Pacer
	docs   fetcher
	logger *slog.Logger

	// Seams for tests; production wiring uses rod, the portal
	// registry, and the real label pipeline.
	newDriver    func() (browser.Driver, error)
	newStrategy  func(kind portal.Kind, opts portal.Options) (portal.Strategy, error)
	exportLabels func(in labels.Input) (*labels.Result, error)
}

// NewExecutor wires an executor against the real browser, portal, and
// label implementations.
func NewExecutor(cfg *config.Config, st Store, blobs blob.Store, logger *slog.Logger) *Executor {
	pacer := pacing.New(cfg.Pacing)
	return &Executor{
		cfg:    cfg,
		store:  st,
		blobs:  blobs,
		pacer:  pacer,
		docs:   docfetch.New(cfg.Scrape, pacer, logger),
		logger: logger.With("component", "executor"),
		newDriver: func() (browser.Driver, error) {
			return browser.NewRod(cfg.Browser, cfg.Scrape.UserAgent)
		},
		newStrategy:  portal.New,
		exportLabels: labels.Export,
	}
}

// JobDir is the scratch area for one job's inputs and artifacts. The
// delete endpoint and the retention sweeper remove it wholesale.
func JobDir(workDir, jobID string) string {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "parcel_jobs")
	}
	return filepath.Join(workDir, jobID)
}

// Start requeues orphaned jobs, then runs the claim loop until ctx is
// cancelled. Callers typically run it in its own goroutine and keep
// the process alive.
func (e *Executor) Start(ctx context.Context) {
	if n, err := e.store.ResetOrphans(ctx); err != nil {
		e.logger.Error("orphan reset failed", "error", err)
	} else if n > 0 {
		e.logger.Info("requeued interrupted jobs", "count", n)
	}

	pollInterval := time.Duration(e.cfg.Worker.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastSweep time.Time
	sweepInterval := time.Duration(e.cfg.Retention.SweepIntervalMinutes) * time.Minute
	if sweepInterval <= 0 {
		sweepInterval = 24 * time.Hour
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Periodically run TTL cleanup for rows, blobs, and temp dirs.
		if e.cfg.Retention.Enabled {
			now := time.Now().UTC()
			if lastSweep.IsZero() || now.Sub(lastSweep) >= sweepInterval {
				CleanupExpiredJobs(ctx, e.cfg, e.store, e.blobs, e.logger)
				lastSweep = now
			}
		}

		// Drain the queue one job at a time.
		for {
			job, err := e.store.ClaimNextPending(ctx)
			if err != nil {
				e.logger.Error("claim failed", "error", err)
				break
			}
			if job == nil {
				break
			}
			e.runJob(ctx, job)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (e *Executor) runJob(ctx context.Context, job *model.ParcelJob) {
	logger := e.logger.With("job_id", job.ID, "county", job.County, "portal", job.PortalKind)
	logger.Info("job claimed")

	err := e.process(ctx, job, logger)
	switch {
	case err == nil:
	case errors.Is(err, errCancelled):
		logger.Info("job cancelled, stopping")
	case ctx.Err() != nil:
		// Shutdown mid-job. The row stays processing and startup
		// recovery requeues it on the next boot.
		logger.Info("shutdown while processing", "error", err)
	default:
		logger.Error("job failed", "error", err)
		e.uploadDiagnostics(context.Background(), job.ID, err)
		if mErr := e.store.MarkFailed(context.Background(), job.ID, err.Error()); mErr != nil {
			logger.Error("mark failed errored", "error", mErr)
		}
		metrics.RecordJobFailed(job.PortalKind)
	}
}

func (e *Executor) process(ctx context.Context, job *model.ParcelJob, logger *slog.Logger) error {
	dir := JobDir(e.cfg.Worker.WorkDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	if e.cancelled(ctx, job.ID) {
		return errCancelled
	}

	if err := e.store.SetStep(ctx, job.ID, "preparing inputs"); err != nil {
		logger.Warn("set step failed", "error", err)
	}
	parcelPath, bundlePath, err := e.stageInputs(ctx, job, dir)
	if err != nil {
		return err
	}

	ids, err := parcel.ReadIdentifiersFile(parcelPath, e.cfg.Worker.MaxParcels)
	if err != nil {
		return fmt.Errorf("read parcel file: %w", err)
	}
	if len(ids) == 0 {
		return errors.New("parcel file contains no identifiers")
	}
	if err := e.store.SetTotalParcels(ctx, job.ID, len(ids)); err != nil {
		return fmt.Errorf("set total parcels: %w", err)
	}
	logger.Info("inputs staged", "parcels", len(ids))

	kind := portal.Kind(job.PortalKind)
	if kind == "" {
		kind = portal.Detect(job.PortalURL)
	}
	strategy, err := e.newStrategy(kind, portal.Options{
		PortalURL:     job.PortalURL,
		SearchTimeout: time.Duration(e.cfg.Browser.SearchTimeoutSeconds) * time.Second,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	drv, err := e.newDriver()
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer drv.Close()

	if err := e.store.SetStep(ctx, job.ID, "navigating to portal"); err != nil {
		logger.Warn("set step failed", "error", err)
	}
	if err := strategy.Prepare(ctx, drv); err != nil {
		return fmt.Errorf("prepare portal: %w", err)
	}

	workbookPath := filepath.Join(dir, "parcels_enriched.xlsx")
	records, err := e.scrapeParcels(ctx, job, strategy, drv, ids, dir, workbookPath, logger)
	if err != nil {
		return err
	}

	// Cancellation is honored once more before the export stages; a
	// cancel that lands during the (long) scrape must not burn more
	// portal requests on exports nobody wants.
	if e.cancelled(ctx, job.ID) {
		return errCancelled
	}

	if err := parcel.WriteWorkbook(workbookPath, records); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	if err := e.store.SetStep(ctx, job.ID, "building dxf labels"); err != nil {
		logger.Warn("set step failed", "error", err)
	}
	out, err := e.exportLabels(labels.Input{
		WorkbookPath: workbookPath,
		BundlePath:   bundlePath,
		TargetEPSG:   job.CRSCode,
		OutDir:       dir,
		ScratchDir:   filepath.Join(dir, "bundle"),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("label export: %w", err)
	}
	logger.Info("labels exported", "features", out.Features)

	if err := e.store.SetStep(ctx, job.ID, "bundling property record cards"); err != nil {
		logger.Warn("set step failed", "error", err)
	}
	prcPath, err := buildPRCBundle(dir, filepath.Join(dir, "documents"))
	if err != nil {
		return fmt.Errorf("prc bundle: %w", err)
	}

	if err := e.store.SetStep(ctx, job.ID, "publishing artifacts"); err != nil {
		logger.Warn("set step failed", "error", err)
	}
	excelURL, dxfURL, prcURL, err := e.publish(ctx, job.ID, workbookPath, out.DXFPath, prcPath)
	if err != nil {
		return err
	}

	closed, err := e.store.MarkCompleted(ctx, job.ID, excelURL, dxfURL, prcURL)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if !closed {
		// A cancel landed after the last checkpoint; the row already
		// says cancelled and must stay that way.
		return errCancelled
	}
	metrics.RecordJobCompleted(string(kind))
	logger.Info("job completed", "parcels", len(records))
	return nil
}

// scrapeParcels walks the identifier list against the portal, pacing
// every step, persisting progress per parcel, and keeping a
// recoverable workbook copy on disk as the run advances.
func (e *Executor) scrapeParcels(ctx context.Context, job *model.ParcelJob, strategy portal.Strategy, drv browser.Driver, ids []string, dir, workbookPath string, logger *slog.Logger) ([]*model.ParcelRecord, error) {
	maxConsecutive := e.cfg.Scrape.MaxConsecutiveFailures
	if maxConsecutive <= 0 {
		maxConsecutive = 5
	}
	saveEvery := e.cfg.Worker.PartialSaveEvery
	if saveEvery <= 0 {
		saveEvery = 10
	}

	docsDir := filepath.Join(dir, "documents")
	records := make([]*model.ParcelRecord, 0, len(ids))
	completed, failed := 0, 0
	consecutive := 0

	for i, id := range ids {
		if e.cancelled(ctx, job.ID) {
			return nil, errCancelled
		}

		rec := strategy.Lookup(ctx, drv, id)
		metrics.RecordParcelLookup(string(rec.Status))

		switch rec.Status {
		case model.LookupError:
			failed++
			consecutive++
			logger.Warn("parcel lookup failed", "parcel_id", id, "note", rec.Note)
		case model.LookupNotFound:
			// Recoverable: the portal answered, it just has no match.
			failed++
			consecutive = 0
			logger.Info("parcel not found", "parcel_id", id)
		default:
			completed++
			consecutive = 0
		}

		if rec.Status == model.LookupOK && rec.DocumentURL != "" {
			dest := filepath.Join(docsDir, parcel.DocumentFileName(rec.OwnerName, rec.ParcelID))
			if err := e.docs.Download(ctx, rec.DocumentURL, dest); err != nil {
				// The scraped attributes stay; only the card is missing.
				rec.Note = "document download failed: " + err.Error()
				logger.Warn("document download failed", "parcel_id", id, "error", err)
			} else {
				rec.DocumentLocalPath = dest
				metrics.RecordDocumentDownloaded()
			}
		}

		records = append(records, rec)

		done := i + 1
		step := fmt.Sprintf("scraping parcels (%d/%d)", done, len(ids))
		if err := e.store.UpdateProgress(ctx, job.ID, completed, failed, step); err != nil {
			logger.Warn("progress update failed", "error", err)
		}

		if done%saveEvery == 0 {
			if err := parcel.WriteWorkbook(workbookPath, records); err != nil {
				logger.Warn("partial workbook save failed", "error", err)
			}
		}

		if consecutive >= maxConsecutive {
			return nil, fmt.Errorf("aborting after %d consecutive lookup failures, portal looks unreachable", consecutive)
		}

		if done < len(ids) {
			if err := e.pacer.Page(ctx); err != nil {
				return nil, err
			}
			if e.pacer.ShouldThink(done) {
				if err := e.pacer.Think(ctx, done); err != nil {
					return nil, err
				}
			}
		}
	}

	return records, nil
}

// stageInputs makes sure both inputs exist locally, downloading from
// the blob store when the worker is not the process that accepted the
// upload. The bundle comes from the job's own upload when present,
// otherwise from the pre-supplied county area.
func (e *Executor) stageInputs(ctx context.Context, job *model.ParcelJob, dir string) (string, string, error) {
	parcelPath := filepath.Join(dir, filepath.Base(job.ParcelFileKey))
	if !fileExists(parcelPath) {
		if err := e.blobs.DownloadTo(ctx, job.ParcelFileKey, parcelPath); err != nil {
			return "", "", fmt.Errorf("stage parcel file: %w", err)
		}
	}

	bundleKey := job.ShapefileKey
	if bundleKey == "" {
		bundleKey = blob.CountyBundleKey(e.cfg.GIS.Region, job.County)
	}
	bundlePath := filepath.Join(dir, "shapefiles.zip")
	if !fileExists(bundlePath) {
		if err := e.blobs.DownloadTo(ctx, bundleKey, bundlePath); err != nil {
			return "", "", fmt.Errorf("stage shapefile bundle: %w", err)
		}
	}
	return parcelPath, bundlePath, nil
}

func (e *Executor) publish(ctx context.Context, jobID, workbookPath, dxfPath, prcPath string) (string, string, string, error) {
	uploads := []struct {
		key  string
		path string
	}{
		{blob.WorkbookKey(jobID), workbookPath},
		{blob.DXFKey(jobID), dxfPath},
		{blob.PRCBundleKey(jobID), prcPath},
	}
	urls := make([]string, len(uploads))
	for i, u := range uploads {
		if err := e.blobs.Upload(ctx, u.key, u.path); err != nil {
			return "", "", "", fmt.Errorf("upload %s: %w", u.key, err)
		}
		urls[i] = e.blobs.URLFor(u.key)
	}
	return urls[0], urls[1], urls[2], nil
}

// cancelled re-reads job status so a cancel issued through the API is
// honored mid-flight. Read errors are treated as not-cancelled; the
// next checkpoint retries.
func (e *Executor) cancelled(ctx context.Context, id string) bool {
	status, err := e.store.GetJobStatus(ctx, id)
	if err != nil {
		return false
	}
	return status == model.StatusCancelled
}

// uploadDiagnostics preserves what the failed page looked like so
// selector drift can be debugged without re-running the job.
func (e *Executor) uploadDiagnostics(ctx context.Context, jobID string, err error) {
	if !e.cfg.Scrape.ScreenshotOnError {
		return
	}
	var missing *portal.SearchInputMissingError
	if !errors.As(err, &missing) || len(missing.Screenshot) == 0 {
		return
	}
	key := blob.DiagnosticsKey(jobID, "search_page.png")
	if upErr := e.blobs.UploadBytes(ctx, key, missing.Screenshot, "image/png"); upErr != nil {
		e.logger.Warn("diagnostics upload failed", "job_id", jobID, "error", upErr)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
