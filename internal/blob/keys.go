package blob

import "strings"

// Key layout for the object store. Everything a job produces or
// consumes lives under jobs/<id>/ so retention and delete can clear a
// whole job with one prefix walk. Pre-supplied county bundles live in
// a separate GIS area that no job ever writes to.

// JobPrefix is the common prefix of every key belonging to a job.
func JobPrefix(jobID string) string {
	return "jobs/" + jobID + "/"
}

// ParcelFileKey stores the uploaded identifier list, keeping the
// uploader's extension so the worker can re-parse by format.
func ParcelFileKey(jobID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return JobPrefix(jobID) + "parcels." + ext
}

// ShapefileKey stores a user-uploaded shapefile bundle.
func ShapefileKey(jobID string) string {
	return JobPrefix(jobID) + "shapefiles.zip"
}

// WorkbookKey is the enriched result workbook.
func WorkbookKey(jobID string) string {
	return JobPrefix(jobID) + "parcels_enriched.xlsx"
}

// DXFKey is the label export artifact.
func DXFKey(jobID string) string {
	return JobPrefix(jobID) + "labels.dxf"
}

// PRCBundleKey is the zipped property record card archive.
func PRCBundleKey(jobID string) string {
	return JobPrefix(jobID) + "PRC.zip"
}

// DiagnosticsKey stores failure diagnostics such as screenshots.
func DiagnosticsKey(jobID, name string) string {
	return JobPrefix(jobID) + "diagnostics/" + name
}

// CountyBundleKey is the pre-supplied shapefile bundle for a county.
// These are maintained by hand outside the job lifecycle.
func CountyBundleKey(region, county string) string {
	return CountyBundlePrefix(region) + county + ".zip"
}

// CountyBundlePrefix is the area holding the current pre-supplied
// bundles for a region.
func CountyBundlePrefix(region string) string {
	return "GIS/" + region + "/Parcels/Current/"
}
