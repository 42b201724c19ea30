package http

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"

	"parcelworks/internal/blob"
	"parcelworks/internal/config"
	"parcelworks/internal/jobs"
	"parcelworks/internal/model"
)

// jobCancelHandler flips a pending or processing job to cancelled.
// The worker notices at its next checkpoint and stops without
// touching more parcels.
func jobCancelHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(JobStore)

	job, err := st.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobNotFound(c)
		}
		return internalError(c, fmt.Errorf("get job: %w", err))
	}

	if job.Status.Terminal() {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_ALREADY_FINISHED",
			Error:   fmt.Sprintf("job is already %s", job.Status),
		})
	}

	ok, err := st.CancelJob(c.Context(), job.ID)
	if err != nil {
		return internalError(c, fmt.Errorf("cancel job: %w", err))
	}
	if !ok {
		// Lost the race against the worker finishing the job.
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_ALREADY_FINISHED",
			Error:   "job finished before the cancel landed",
		})
	}

	return c.JSON(CancelJobResponse{
		Success: true,
		Status:  string(model.StatusCancelled),
	})
}

// jobDeleteHandler removes the job row, its blobs, and its scratch
// directory. Processing jobs must be cancelled first so the worker is
// not left writing into a deleted job.
func jobDeleteHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	st := c.Locals("store").(JobStore)
	blobs := c.Locals("blobs").(blob.Store)

	job, err := st.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobNotFound(c)
		}
		return internalError(c, fmt.Errorf("get job: %w", err))
	}

	if job.Status == model.StatusProcessing {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_PROCESSING",
			Error:   "cancel the job before deleting it",
		})
	}

	// Blob and scratch cleanup is best effort; the row delete decides.
	if _, err := blobs.DeletePrefix(c.Context(), blob.JobPrefix(job.ID)); err != nil {
		logFrom(c).Warn("delete job blobs", "job_id", job.ID, "error", err)
	}
	if err := os.RemoveAll(jobs.JobDir(cfg.Worker.WorkDir, job.ID)); err != nil {
		logFrom(c).Warn("delete job workdir", "job_id", job.ID, "error", err)
	}

	if err := st.DeleteJob(c.Context(), job.ID); err != nil {
		return internalError(c, fmt.Errorf("delete job: %w", err))
	}

	return c.JSON(DeleteJobResponse{Success: true})
}
