package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the API and the worker.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobsCompleted = make(map[string]int64) // by portal kind
	jobsFailed    = make(map[string]int64) // by portal kind

	parcelLookups = make(map[string]int64) // by outcome

	documentsDownloaded int64

	retentionJobsDeleted  int64
	retentionBlobsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordJobCompleted increments the completed-job counter for a portal
// kind.
func RecordJobCompleted(portalKind string) {
	mu.Lock()
	defer mu.Unlock()
	jobsCompleted[portalKind]++
}

// RecordJobFailed increments the failed-job counter for a portal kind.
func RecordJobFailed(portalKind string) {
	mu.Lock()
	defer mu.Unlock()
	jobsFailed[portalKind]++
}

// RecordParcelLookup counts one per-parcel lookup by outcome
// (SUCCESS, NOT_FOUND, ERROR).
func RecordParcelLookup(outcome string) {
	mu.Lock()
	defer mu.Unlock()
	parcelLookups[outcome]++
}

// RecordDocumentDownloaded counts one fetched property record card.
func RecordDocumentDownloaded() {
	mu.Lock()
	defer mu.Unlock()
	documentsDownloaded++
}

// RecordRetention increments the counters of jobs and blobs deleted by
// TTL cleanup.
func RecordRetention(jobs, blobs int64) {
	if jobs <= 0 && blobs <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if jobs > 0 {
		retentionJobsDeleted += jobs
	}
	if blobs > 0 {
		retentionBlobsDeleted += blobs
	}
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP parcelworks_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE parcelworks_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "parcelworks_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP parcelworks_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE parcelworks_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP parcelworks_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE parcelworks_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "parcelworks_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "parcelworks_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	// Job outcome metrics
	b.WriteString("# HELP parcelworks_jobs_completed_total Jobs completed, by portal kind\n")
	b.WriteString("# TYPE parcelworks_jobs_completed_total counter\n")
	for _, k := range sortedKeys(jobsCompleted) {
		fmt.Fprintf(&b, "parcelworks_jobs_completed_total{portal=\"%s\"} %d\n", k, jobsCompleted[k])
	}

	b.WriteString("# HELP parcelworks_jobs_failed_total Jobs failed, by portal kind\n")
	b.WriteString("# TYPE parcelworks_jobs_failed_total counter\n")
	for _, k := range sortedKeys(jobsFailed) {
		fmt.Fprintf(&b, "parcelworks_jobs_failed_total{portal=\"%s\"} %d\n", k, jobsFailed[k])
	}

	// Per-parcel lookup metrics
	b.WriteString("# HELP parcelworks_parcel_lookups_total Parcel lookups, by outcome\n")
	b.WriteString("# TYPE parcelworks_parcel_lookups_total counter\n")
	for _, k := range sortedKeys(parcelLookups) {
		fmt.Fprintf(&b, "parcelworks_parcel_lookups_total{outcome=\"%s\"} %d\n", k, parcelLookups[k])
	}

	b.WriteString("# HELP parcelworks_documents_downloaded_total Property record cards downloaded\n")
	b.WriteString("# TYPE parcelworks_documents_downloaded_total counter\n")
	fmt.Fprintf(&b, "parcelworks_documents_downloaded_total %d\n", documentsDownloaded)

	// Retention metrics
	b.WriteString("# HELP parcelworks_retention_jobs_deleted_total Jobs deleted by TTL cleanup\n")
	b.WriteString("# TYPE parcelworks_retention_jobs_deleted_total counter\n")
	fmt.Fprintf(&b, "parcelworks_retention_jobs_deleted_total %d\n", retentionJobsDeleted)

	b.WriteString("# HELP parcelworks_retention_blobs_deleted_total Blobs deleted by TTL cleanup\n")
	b.WriteString("# TYPE parcelworks_retention_blobs_deleted_total counter\n")
	fmt.Fprintf(&b, "parcelworks_retention_blobs_deleted_total %d\n", retentionBlobsDeleted)

	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
