package http

import (
	"time"
)

// ErrorResponse is the error envelope every endpoint shares.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// JobCounts reports per-parcel progress.
type JobCounts struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Percentage float64 `json:"percentage"`
}

// JobTiming carries elapsed time and, while a job is processing, a
// remaining estimate. Both are null until they mean something.
type JobTiming struct {
	ElapsedSeconds            *int64 `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *int64 `json:"estimated_remaining_seconds"`
}

// JobResults points at the published artifacts.
type JobResults struct {
	ExcelURL     string `json:"excel_url"`
	DXFURL       string `json:"dxf_url"`
	PRCBundleURL string `json:"prc_bundle_url"`
}

// JobItem is the job representation shared by the detail and list
// payloads.
type JobItem struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	County      string      `json:"county"`
	PortalKind  string      `json:"portal_kind"`
	PortalURL   string      `json:"portal_url,omitempty"`
	CRSCode     int         `json:"crs_code"`
	CurrentStep string      `json:"current_step,omitempty"`
	Error       string      `json:"error,omitempty"`
	Counts      JobCounts   `json:"counts"`
	Timing      JobTiming   `json:"timing"`
	Results     *JobResults `json:"results,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// SubmitJobResponse acknowledges a queued submission.
type SubmitJobResponse struct {
	Success     bool   `json:"success"`
	JobID       string `json:"job_id,omitempty"`
	Status      string `json:"status,omitempty"`
	PortalKind  string `json:"portal_kind,omitempty"`
	ParcelCount int    `json:"parcel_count,omitempty"`
	Code        string `json:"code,omitempty"`
	Error       string `json:"error,omitempty"`
}

type JobDetailResponse struct {
	Success bool     `json:"success"`
	Job     *JobItem `json:"job,omitempty"`
	Code    string   `json:"code,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type ListJobsResponse struct {
	Success bool      `json:"success"`
	Jobs    []JobItem `json:"jobs"`
	Total   int64     `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	Code    string    `json:"code,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type JobResultsResponse struct {
	Success bool        `json:"success"`
	Results *JobResults `json:"results,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CancelJobResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type DeleteJobResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}
