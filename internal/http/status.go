package http

import (
	"math"
	"time"

	"parcelworks/internal/model"
)

// jobPayload maps a stored job onto the wire shape shared by the
// detail and list endpoints.
func jobPayload(j *model.ParcelJob, now time.Time) JobItem {
	item := JobItem{
		ID:          j.ID,
		Status:      string(j.Status),
		County:      j.County,
		PortalKind:  j.PortalKind,
		PortalURL:   j.PortalURL,
		CRSCode:     j.CRSCode,
		CurrentStep: j.CurrentStep,
		Error:       j.ErrorMessage,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}

	item.Counts = JobCounts{
		Total:      j.TotalParcels,
		Completed:  j.ParcelsCompleted,
		Failed:     j.ParcelsFailed,
		Percentage: round2(j.Percentage()),
	}
	item.Timing = timingFor(j, now)

	if j.Status == model.StatusCompleted {
		item.Results = &JobResults{
			ExcelURL:     j.ExcelURL,
			DXFURL:       j.DXFURL,
			PRCBundleURL: j.PRCBundleURL,
		}
	}
	return item
}

// timingFor derives elapsed time and the remaining estimate. The
// estimate is the average elapsed per completed parcel times the
// parcels left, and exists only while the job is processing with at
// least one parcel done.
func timingFor(j *model.ParcelJob, now time.Time) JobTiming {
	var t JobTiming
	if j.StartedAt == nil {
		return t
	}

	end := now
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	elapsed := int64(end.Sub(*j.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	t.ElapsedSeconds = &elapsed

	if j.Status != model.StatusProcessing || j.ParcelsCompleted <= 0 {
		return t
	}
	remainingParcels := j.TotalParcels - j.ParcelsCompleted
	if remainingParcels <= 0 {
		return t
	}
	avg := float64(elapsed) / float64(j.ParcelsCompleted)
	remaining := int64(avg * float64(remainingParcels))
	t.EstimatedRemainingSeconds = &remaining
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
