package jobs

import (
	"context"
	"log/slog"
	"os"
	"time"

	"parcelworks/internal/blob"
	"parcelworks/internal/config"
	"parcelworks/internal/metrics"
)

// RetentionStats captures what a TTL sweep removed.
type RetentionStats struct {
	JobsDeleted  int64 `json:"jobsDeleted"`
	BlobsDeleted int64 `json:"blobsDeleted"`
}

// CleanupExpiredJobs deletes jobs older than the retention window so
// neither the database nor the blob store grows without bound. Each
// job loses its blobs, its temp dir, and finally its row. Blob and
// filesystem errors are logged and the row is removed anyway; only a
// failed row delete leaves the job for the next sweep.
func CleanupExpiredJobs(ctx context.Context, cfg *config.Config, st Store, blobs blob.Store, logger *slog.Logger) RetentionStats {
	var stats RetentionStats

	days := cfg.Retention.JobDays
	if days <= 0 {
		days = 3
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	expired, err := st.ListOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error("retention list failed", "error", err)
		return stats
	}

	for _, job := range expired {
		if n, err := blobs.DeletePrefix(ctx, blob.JobPrefix(job.ID)); err != nil {
			logger.Warn("retention blob delete failed", "job_id", job.ID, "error", err)
		} else {
			stats.BlobsDeleted += int64(n)
		}

		if err := os.RemoveAll(JobDir(cfg.Worker.WorkDir, job.ID)); err != nil {
			logger.Warn("retention temp dir delete failed", "job_id", job.ID, "error", err)
		}

		if err := st.DeleteJob(ctx, job.ID); err != nil {
			logger.Warn("retention row delete failed", "job_id", job.ID, "error", err)
			continue
		}
		stats.JobsDeleted++
	}

	if stats.JobsDeleted > 0 || stats.BlobsDeleted > 0 {
		metrics.RecordRetention(stats.JobsDeleted, stats.BlobsDeleted)
		logger.Info("retention sweep complete",
			"jobs_deleted", stats.JobsDeleted, "blobs_deleted", stats.BlobsDeleted)
	}
	return stats
}
