package model

import "time"

// Status represents the lifecycle state of a parcel job. These values
// must match the text values stored in the database
// (parcel_jobs.status).
//
// Centralizing these here avoids scattering string literals like
// "pending" or "completed" across packages.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a job in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParcelJob is the central persisted entity: one batch of parcel
// identifiers to be researched against a county portal. It is owned by
// the queue repository; while status is "processing" it is mutated
// exclusively by the single worker.
type ParcelJob struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	UserName  string `json:"user_name,omitempty"`

	County     string `json:"county"`
	CRSCode    int    `json:"crs_code"`
	PortalURL  string `json:"portal_url"`
	PortalKind string `json:"portal_kind"`

	// Blob keys for the two inputs. ShapefileKey is empty when the
	// bundle comes from the pre-supplied GIS area for the county.
	ParcelFileKey  string `json:"parcel_file_key"`
	ParcelFileName string `json:"parcel_file_name"`
	ShapefileKey   string `json:"shapefile_key,omitempty"`

	Status      Status `json:"status"`
	CurrentStep string `json:"current_step,omitempty"`

	TotalParcels     int `json:"total_parcels"`
	ParcelsCompleted int `json:"parcels_completed"`
	ParcelsFailed    int `json:"parcels_failed"`

	ErrorMessage string `json:"error_message,omitempty"`

	ExcelURL     string `json:"excel_url,omitempty"`
	DXFURL       string `json:"dxf_url,omitempty"`
	PRCBundleURL string `json:"prc_bundle_url,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Percentage returns scrape progress as 0..100.
func (j *ParcelJob) Percentage() float64 {
	if j.TotalParcels <= 0 {
		return 0
	}
	done := j.ParcelsCompleted + j.ParcelsFailed
	return float64(done) / float64(j.TotalParcels) * 100
}

// LookupStatus is the per-parcel outcome recorded on each row of the
// enriched workbook.
type LookupStatus string

const (
	LookupOK       LookupStatus = "SUCCESS"
	LookupNotFound LookupStatus = "NOT_FOUND"
	LookupError    LookupStatus = "ERROR"
)

// Address is a postal address broken into its joinable parts. Missing
// parts stay empty rather than guessed.
type Address struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Transfer holds the most recent transfer-history row for a parcel.
// Instrument is either a plain instrument number or a "book/page" pair
// joined with a slash, exactly as the portal renders it.
type Transfer struct {
	Date       string
	Instrument string
	DeedCode   string
}

// ParcelRecord is the transient result of looking up one parcel on a
// portal. It lives in memory and in the job-scoped temp directory only;
// the workbook writer persists it row by row.
type ParcelRecord struct {
	ParcelID    string
	AlternateID string

	OwnerName    string
	OwnerAddress Address
	SitusAddress Address

	LegalDescription string
	Transfer         Transfer

	DocumentURL       string
	DocumentLocalPath string

	Status LookupStatus
	Note   string
}
