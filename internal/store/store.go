package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"parcelworks/internal/model"
)

// Store wraps the Postgres connection pool and exposes the queue
// repository operations the rest of the service needs. All job-record
// mutations go through here.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// jobColumns is the canonical column list; scanJob must match it.
const jobColumns = `id, user_id, user_email, user_name, county, crs_code,
	portal_url, portal_kind, parcel_file_key, parcel_file_name, shapefile_key,
	status, current_step, total_parcels, parcels_completed, parcels_failed,
	error_message, excel_url, dxf_url, prc_bundle_url,
	created_at, updated_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*model.ParcelJob, error) {
	var j model.ParcelJob
	var status string
	var startedAt, completedAt sql.NullTime

	err := r.Scan(
		&j.ID, &j.UserID, &j.UserEmail, &j.UserName, &j.County, &j.CRSCode,
		&j.PortalURL, &j.PortalKind, &j.ParcelFileKey, &j.ParcelFileName, &j.ShapefileKey,
		&status, &j.CurrentStep, &j.TotalParcels, &j.ParcelsCompleted, &j.ParcelsFailed,
		&j.ErrorMessage, &j.ExcelURL, &j.DXFURL, &j.PRCBundleURL,
		&j.CreatedAt, &j.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = model.Status(status)
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// InsertJob persists a new pending job. The database stamps created_at
// and updated_at; the returned copy carries them.
func (s *Store) InsertJob(ctx context.Context, j *model.ParcelJob) (*model.ParcelJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO parcel_jobs (
			id, user_id, user_email, user_name, county, crs_code,
			portal_url, portal_kind, parcel_file_key, parcel_file_name,
			shapefile_key, status, total_parcels
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+jobColumns,
		j.ID, j.UserID, j.UserEmail, j.UserName, j.County, j.CRSCode,
		j.PortalURL, j.PortalKind, j.ParcelFileKey, j.ParcelFileName,
		j.ShapefileKey, string(model.StatusPending), j.TotalParcels,
	)
	inserted, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return inserted, nil
}

// GetJob fetches one job by id. The wrapped error is sql.ErrNoRows when
// the id is unknown.
func (s *Store) GetJob(ctx context.Context, id string) (*model.ParcelJob, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM parcel_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// GetJobStatus fetches only the status column; the worker polls this
// between side effects to observe cancellation cheaply.
func (s *Store) GetJobStatus(ctx context.Context, id string) (model.Status, error) {
	var status string
	err := s.DB.QueryRowContext(ctx, `SELECT status FROM parcel_jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("get job status %s: %w", id, err)
	}
	return model.Status(status), nil
}

// ClaimNextPending atomically transitions the oldest pending job to
// processing, stamping started_at and updated_at, and returns it. The
// SKIP LOCKED subselect keeps the claim a single round trip and safe
// even if a second worker process is ever pointed at the same table.
// Returns (nil, nil) when the queue is empty.
func (s *Store) ClaimNextPending(ctx context.Context) (*model.ParcelJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE parcel_jobs
		SET status = $1, started_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM parcel_jobs
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		string(model.StatusProcessing), string(model.StatusPending),
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next pending: %w", err)
	}
	return j, nil
}

// UpdateProgress records per-parcel counters and the human-readable
// step label while a job is processing.
func (s *Store) UpdateProgress(ctx context.Context, id string, completed, failed int, step string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE parcel_jobs
		SET parcels_completed = $2, parcels_failed = $3, current_step = $4, updated_at = now()
		WHERE id = $1`,
		id, completed, failed, step,
	)
	if err != nil {
		return fmt.Errorf("update progress %s: %w", id, err)
	}
	return nil
}

// SetTotalParcels records the identifier count once the input list has
// been parsed.
func (s *Store) SetTotalParcels(ctx context.Context, id string, total int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE parcel_jobs SET total_parcels = $2, updated_at = now() WHERE id = $1`,
		id, total,
	)
	if err != nil {
		return fmt.Errorf("set total parcels %s: %w", id, err)
	}
	return nil
}

// SetStep updates only the current step label.
func (s *Store) SetStep(ctx context.Context, id, step string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE parcel_jobs SET current_step = $2, updated_at = now() WHERE id = $1`,
		id, step,
	)
	if err != nil {
		return fmt.Errorf("set step %s: %w", id, err)
	}
	return nil
}

// MarkCompleted records the artifact URLs and closes the job. A job
// already cancelled stays cancelled; the false return tells the worker
// the row was not closed.
func (s *Store) MarkCompleted(ctx context.Context, id, excelURL, dxfURL, prcURL string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE parcel_jobs
		SET status = $2, excel_url = $3, dxf_url = $4, prc_bundle_url = $5,
		    current_step = '', completed_at = now(), updated_at = now()
		WHERE id = $1 AND status <> $6`,
		id, string(model.StatusCompleted), excelURL, dxfURL, prcURL,
		string(model.StatusCancelled),
	)
	if err != nil {
		return false, fmt.Errorf("mark completed %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed closes the job with an error message. A job already
// cancelled stays cancelled.
func (s *Store) MarkFailed(ctx context.Context, id, msg string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE parcel_jobs
		SET status = $2, error_message = $3, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status <> $4`,
		id, string(model.StatusFailed), msg, string(model.StatusCancelled),
	)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// CancelJob flips a pending or processing job to cancelled. Returns
// false when the job was already terminal (or unknown).
func (s *Store) CancelJob(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE parcel_jobs
		SET status = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, string(model.StatusCancelled),
		string(model.StatusPending), string(model.StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteJob removes the job record. Blob and temp-dir cleanup is the
// caller's responsibility.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM parcel_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// ListFilter narrows ListJobs/CountJobs. Zero values mean "any".
type ListFilter struct {
	Status string
	UserID string
	Limit  int
	Offset int
}

func (f ListFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, "user_id = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListJobs returns jobs sorted newest first.
func (s *Store) ListJobs(ctx context.Context, f ListFilter) ([]*model.ParcelJob, error) {
	where, args := f.where()

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	q := `SELECT ` + jobColumns + ` FROM parcel_jobs` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.ParcelJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// CountJobs returns the number of jobs matching the filter, ignoring
// paging fields.
func (s *Store) CountJobs(ctx context.Context, f ListFilter) (int64, error) {
	where, args := f.where()
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM parcel_jobs`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// ResetOrphans flips every processing job back to pending. Run once at
// worker startup: a processing row with no live worker is a job that
// was interrupted, not one that failed. Idempotent.
func (s *Store) ResetOrphans(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE parcel_jobs SET status = $1, updated_at = now() WHERE status = $2`,
		string(model.StatusPending), string(model.StatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("reset orphans: %w", err)
	}
	return res.RowsAffected()
}

// ListOlderThan returns jobs created before the cutoff, oldest first.
// The retention sweeper deletes their rows, blobs, and temp dirs.
func (s *Store) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*model.ParcelJob, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM parcel_jobs WHERE created_at < $1 ORDER BY created_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list older than: %w", err)
	}
	defer rows.Close()

	var out []*model.ParcelJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list older than scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
