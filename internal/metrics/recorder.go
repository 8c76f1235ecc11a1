// Package metrics keeps in-memory counters for batches, forms, and VLM
// calls. Nothing is persisted; the snapshot is surfaced on GET /status.
package metrics

import (
	"sync"
	"time"
)

// Recorder collects request and VLM-call metrics. Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	batchesTotal   int64
	batchesFailed  int64
	formsTotal     int64
	formsFailed    int64
	vlmCallsTotal  int64
	vlmCallsFailed int64

	totalBatchTime time.Duration
	totalVLMTime   time.Duration

	startedAt time.Time
}

// Snapshot is a point-in-time view of collected metrics.
type Snapshot struct {
	BatchesTotal   int64 `json:"batches_total"`
	BatchesFailed  int64 `json:"batches_failed"`
	FormsTotal     int64 `json:"forms_total"`
	FormsFailed    int64 `json:"forms_failed"`
	VLMCalls       int64 `json:"vlm_calls_total"`
	VLMCallsFailed int64 `json:"vlm_calls_failed"`

	AvgBatchSeconds float64 `json:"avg_batch_seconds"`
	AvgVLMSeconds   float64 `json:"avg_vlm_seconds"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{startedAt: time.Now()}
}

// RecordBatch records one completed extraction batch.
func (r *Recorder) RecordBatch(ok bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchesTotal++
	if !ok {
		r.batchesFailed++
	}
	r.totalBatchTime += elapsed
}

// RecordForm records one processed form.
func (r *Recorder) RecordForm(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.formsTotal++
	if !ok {
		r.formsFailed++
	}
}

// RecordVLMCall records one VLM endpoint call.
func (r *Recorder) RecordVLMCall(ok bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vlmCallsTotal++
	if !ok {
		r.vlmCallsFailed++
	}
	r.totalVLMTime += elapsed
}

// Snapshot returns current metric values.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		BatchesTotal:   r.batchesTotal,
		BatchesFailed:  r.batchesFailed,
		FormsTotal:     r.formsTotal,
		FormsFailed:    r.formsFailed,
		VLMCalls:       r.vlmCallsTotal,
		VLMCallsFailed: r.vlmCallsFailed,
		UptimeSeconds:  time.Since(r.startedAt).Seconds(),
	}
	if r.batchesTotal > 0 {
		s.AvgBatchSeconds = r.totalBatchTime.Seconds() / float64(r.batchesTotal)
	}
	if r.vlmCallsTotal > 0 {
		s.AvgVLMSeconds = r.totalVLMTime.Seconds() / float64(r.vlmCallsTotal)
	}
	return s
}
