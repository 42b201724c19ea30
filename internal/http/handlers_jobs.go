package http

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"parcelworks/internal/blob"
	"parcelworks/internal/config"
	"parcelworks/internal/model"
	"parcelworks/internal/parcel"
	"parcelworks/internal/portal"
	"parcelworks/internal/store"
)

const (
	maxParcelFileBytes = 10 << 20
	maxShapefileBytes  = 200 << 20
)

var parcelFileExts = map[string]bool{".txt": true, ".csv": true, ".xlsx": true}

// jobsCreateHandler accepts the multipart submission, validates and
// parses the identifier list up front, stages both inputs in the blob
// store, and enqueues a pending job.
func jobsCreateHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	st := c.Locals("store").(JobStore)
	blobs := c.Locals("blobs").(blob.Store)

	county := strings.TrimSpace(c.FormValue("county"))
	portalURL := strings.TrimSpace(c.FormValue("portal_url"))
	if county == "" || portalURL == "" {
		return badRequest(c, "BAD_REQUEST", "county and portal_url are required")
	}

	crsCode, err := strconv.Atoi(strings.TrimSpace(c.FormValue("crs_code")))
	if err != nil || crsCode <= 0 {
		return badRequest(c, "BAD_REQUEST", "crs_code must be a positive EPSG code")
	}

	fileHeader, err := c.FormFile("parcel_file")
	if err != nil {
		return badRequest(c, "BAD_REQUEST", "parcel_file is required")
	}
	if fileHeader.Size > maxParcelFileBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
			Success: false,
			Code:    "input_too_large",
			Error:   fmt.Sprintf("parcel file exceeds %d MB", maxParcelFileBytes>>20),
		})
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !parcelFileExts[ext] {
		return badRequest(c, "BAD_REQUEST", "invalid parcel file type, allowed: txt, csv, xlsx")
	}

	// Parse now so malformed lists never reach the queue.
	src, err := fileHeader.Open()
	if err != nil {
		return internalError(c, fmt.Errorf("open parcel file: %w", err))
	}
	ids, err := parcel.ReadIdentifiers(src, fileHeader.Filename, cfg.Worker.MaxParcels)
	src.Close()
	if err != nil {
		if errors.Is(err, parcel.ErrTooManyIdentifiers) {
			return badRequest(c, "too_many_identifiers", err.Error())
		}
		return badRequest(c, "BAD_REQUEST", fmt.Sprintf("parcel file unreadable: %v", err))
	}
	if len(ids) == 0 {
		return badRequest(c, "BAD_REQUEST", "parcel file contains no identifiers")
	}

	jobID := uuid.New().String()
	ctx := c.Context()

	// Shapefile bundle: an upload wins; otherwise the pre-supplied
	// county bundle must already exist in the GIS area.
	shapefileKey := ""
	shpHeader, shpErr := optionalFormFile(c, "shapefile_zip")
	if shpErr != nil {
		return badRequest(c, "BAD_REQUEST", fmt.Sprintf("shapefile_zip part unreadable: %v", shpErr))
	}
	if shpHeader != nil {
		if shpHeader.Size > maxShapefileBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
				Success: false,
				Code:    "input_too_large",
				Error:   fmt.Sprintf("shapefile bundle exceeds %d MB", maxShapefileBytes>>20),
			})
		}
		if !strings.EqualFold(filepath.Ext(shpHeader.Filename), ".zip") {
			return badRequest(c, "BAD_REQUEST", "shapefile bundle must be a zip archive")
		}
		shapefileKey = blob.ShapefileKey(jobID)
		if err := uploadMultipart(ctx, blobs, shapefileKey, shpHeader); err != nil {
			return internalError(c, fmt.Errorf("store shapefile bundle: %w", err))
		}
	} else {
		countyKey := blob.CountyBundleKey(cfg.GIS.Region, county)
		ok, err := blobs.Exists(ctx, countyKey)
		if err != nil {
			return internalError(c, fmt.Errorf("check pre-supplied bundle: %w", err))
		}
		if !ok {
			return badRequest(c, "BAD_REQUEST",
				fmt.Sprintf("no shapefile uploaded and no pre-supplied bundle for %s county", county))
		}
	}

	parcelKey := blob.ParcelFileKey(jobID, ext)
	if err := uploadMultipart(ctx, blobs, parcelKey, fileHeader); err != nil {
		return internalError(c, fmt.Errorf("store parcel file: %w", err))
	}

	job := &model.ParcelJob{
		ID:             jobID,
		UserID:         strings.TrimSpace(c.FormValue("user_id")),
		UserEmail:      strings.TrimSpace(c.FormValue("user_email")),
		UserName:       strings.TrimSpace(c.FormValue("user_name")),
		County:         county,
		CRSCode:        crsCode,
		PortalURL:      portalURL,
		PortalKind:     string(portal.Detect(portalURL)),
		ParcelFileKey:  parcelKey,
		ParcelFileName: fileHeader.Filename,
		ShapefileKey:   shapefileKey,
		Status:         model.StatusPending,
		TotalParcels:   len(ids),
	}
	created, err := st.InsertJob(ctx, job)
	if err != nil {
		return internalError(c, fmt.Errorf("insert job: %w", err))
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitJobResponse{
		Success:     true,
		JobID:       created.ID,
		Status:      string(created.Status),
		PortalKind:  created.PortalKind,
		ParcelCount: len(ids),
	})
}

// jobsListHandler lists jobs newest first with optional status and
// user filters.
func jobsListHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(JobStore)

	var f store.ListFilter
	if status := c.Query("status"); status != "" {
		if !model.ValidStatus(status) {
			return badRequest(c, "BAD_REQUEST", "invalid status filter")
		}
		f.Status = status
	}
	f.UserID = c.Query("user_id")

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return badRequest(c, "BAD_REQUEST", "invalid limit value")
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "BAD_REQUEST", "invalid offset value")
		}
		offset = n
	}
	f.Limit, f.Offset = limit, offset

	ctx := c.Context()
	found, err := st.ListJobs(ctx, f)
	if err != nil {
		return internalError(c, fmt.Errorf("list jobs: %w", err))
	}
	total, err := st.CountJobs(ctx, f)
	if err != nil {
		return internalError(c, fmt.Errorf("count jobs: %w", err))
	}

	now := time.Now().UTC()
	items := make([]JobItem, 0, len(found))
	for _, j := range found {
		items = append(items, jobPayload(j, now))
	}

	return c.JSON(ListJobsResponse{
		Success: true,
		Jobs:    items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// jobDetailHandler returns the full status payload for one job.
func jobDetailHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(JobStore)

	job, err := st.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobNotFound(c)
		}
		return internalError(c, fmt.Errorf("get job: %w", err))
	}

	item := jobPayload(job, time.Now().UTC())
	return c.JSON(JobDetailResponse{Success: true, Job: &item})
}

// jobResultsHandler returns only the artifact URLs, and only once the
// job has actually produced them.
func jobResultsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(JobStore)

	job, err := st.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobNotFound(c)
		}
		return internalError(c, fmt.Errorf("get job: %w", err))
	}

	if job.Status != model.StatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_NOT_COMPLETED",
			Error:   fmt.Sprintf("job is %s, results exist only for completed jobs", job.Status),
		})
	}

	return c.JSON(JobResultsResponse{
		Success: true,
		Results: &JobResults{
			ExcelURL:     job.ExcelURL,
			DXFURL:       job.DXFURL,
			PRCBundleURL: job.PRCBundleURL,
		},
	})
}

// optionalFormFile fetches a file part that may legitimately be
// absent. A missing part returns (nil, nil); any other multipart error
// is the caller's to report, it must not pass for "no file uploaded".
func optionalFormFile(c *fiber.Ctx, key string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(key)
	if errors.Is(err, fasthttp.ErrMissingFile) {
		return nil, nil
	}
	return fh, err
}

// uploadMultipart spools one uploaded part through a scratch file into
// the blob store, keeping large bundles off the heap.
func uploadMultipart(ctx context.Context, blobs blob.Store, key string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "parcelworks-upload-*")
	if err != nil {
		return fmt.Errorf("scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close scratch file: %w", err)
	}

	return blobs.Upload(ctx, key, tmp.Name())
}

func badRequest(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success: false,
		Code:    code,
		Error:   msg,
	})
}

func jobNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Success: false,
		Code:    "NOT_FOUND",
		Error:   "job not found",
	})
}

func internalError(c *fiber.Ctx, err error) error {
	logFrom(c).Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Success: false,
		Code:    "INTERNAL_ERROR",
		Error:   err.Error(),
	})
}
