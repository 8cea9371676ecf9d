package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64

	AssessmentsTotal        uint64
	AssessmentsRunning      uint64
	AssessmentsFailed       uint64
	AssessmentsInconclusive uint64
	ManualReviews           uint64
	BandLow                 uint64
	BandMedium              uint64
	BandHigh                uint64
	BandCritical            uint64

	StartTime time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// AssessmentStarted marks a document entering the pipeline; call the
// returned func with the outcome when it leaves.
func AssessmentStarted() func(v *document.Verdict) {
	atomic.AddUint64(&globalMetrics.AssessmentsRunning, 1)
	return func(v *document.Verdict) {
		atomic.AddUint64(&globalMetrics.AssessmentsRunning, ^uint64(0))
		if v == nil {
			atomic.AddUint64(&globalMetrics.AssessmentsFailed, 1)
			return
		}
		RecordVerdict(*v)
	}
}

// RecordVerdict counts a completed assessment by band.
func RecordVerdict(v document.Verdict) {
	atomic.AddUint64(&globalMetrics.AssessmentsTotal, 1)
	if v.ManualReview {
		atomic.AddUint64(&globalMetrics.ManualReviews, 1)
	}
	if v.Inconclusive {
		atomic.AddUint64(&globalMetrics.AssessmentsInconclusive, 1)
		return
	}
	switch v.Band {
	case document.BandLow:
		atomic.AddUint64(&globalMetrics.BandLow, 1)
	case document.BandMedium:
		atomic.AddUint64(&globalMetrics.BandMedium, 1)
	case document.BandHigh:
		atomic.AddUint64(&globalMetrics.BandHigh, 1)
	case document.BandCritical:
		atomic.AddUint64(&globalMetrics.BandCritical, 1)
	}
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	load := atomic.LoadUint64
	return map[string]interface{}{
		"requests_total":           load(&globalMetrics.RequestsTotal),
		"requests_in_progress":     load(&globalMetrics.RequestsInProgress),
		"requests_success":         load(&globalMetrics.RequestsSuccess),
		"requests_failed":          load(&globalMetrics.RequestsFailed),
		"assessments_total":        load(&globalMetrics.AssessmentsTotal),
		"assessments_running":      load(&globalMetrics.AssessmentsRunning),
		"assessments_failed":       load(&globalMetrics.AssessmentsFailed),
		"assessments_inconclusive": load(&globalMetrics.AssessmentsInconclusive),
		"manual_reviews":           load(&globalMetrics.ManualReviews),
		"bands": map[string]uint64{
			string(document.BandLow):      load(&globalMetrics.BandLow),
			string(document.BandMedium):   load(&globalMetrics.BandMedium),
			string(document.BandHigh):     load(&globalMetrics.BandHigh),
			string(document.BandCritical): load(&globalMetrics.BandCritical),
		},
		"uptime_seconds": time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
