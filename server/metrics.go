package server

import (
	"runtime"
	"sync"
	"time"

	"github.com/nvr-ai/go-facedetect/detector"
	"github.com/pkg/errors"
)

// Metrics accumulates request counters and stage timings.
type Metrics struct {
	mu         sync.Mutex
	started    time.Time
	requests   int64
	failures   map[string]int64
	detections int64
	succeeded  int64
	capture    time.Duration
	encode     time.Duration
	inference  time.Duration
	decode     time.Duration
	total      time.Duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests   int64            `json:"requests"`
	Failures   map[string]int64 `json:"failures"`
	Detections int64            `json:"detections_total"`
	AvgCapture float64          `json:"avg_capture_ms"`
	AvgEncode  float64          `json:"avg_encode_ms"`
	AvgInfer   float64          `json:"avg_inference_ms"`
	AvgDecode  float64          `json:"avg_decode_ms"`
	AvgTotal   float64          `json:"avg_total_ms"`
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		started:  time.Now(),
		failures: make(map[string]int64),
	}
}

// RecordSuccess counts a completed request and its timings.
func (m *Metrics) RecordSuccess(res *detector.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.succeeded++
	m.detections += int64(len(res.Detections))
	m.capture += res.Timings.Capture
	m.encode += res.Timings.Encode
	m.inference += res.Timings.Inference
	m.decode += res.Timings.Decode
	m.total += res.Timings.Total
}

// RecordFailure counts a failed request under its stage, or "other" when the
// error carries no stage.
func (m *Metrics) RecordFailure(err error) {
	stage := "other"
	var stageErr *detector.Error
	if errors.As(err, &stageErr) {
		stage = string(stageErr.Stage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.failures[stage]++
}

// Snapshot returns the current counters with averages over successful
// requests.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make(map[string]int64, len(m.failures))
	for k, v := range m.failures {
		failures[k] = v
	}

	return MetricsSnapshot{
		Requests:   m.requests,
		Failures:   failures,
		Detections: m.detections,
		AvgCapture: m.average(m.capture),
		AvgEncode:  m.average(m.encode),
		AvgInfer:   m.average(m.inference),
		AvgDecode:  m.average(m.decode),
		AvgTotal:   m.average(m.total),
	}
}

func (m *Metrics) average(d time.Duration) float64 {
	if m.succeeded == 0 {
		return 0
	}
	return float64(d) / float64(m.succeeded) / float64(time.Millisecond)
}

// RuntimeStats reports process-level counters next to the pipeline metrics.
func (m *Metrics) RuntimeStats() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"uptime_s":   time.Since(m.started).Seconds(),
		"goroutines": runtime.NumGoroutine(),
		"cgo_calls":  runtime.NumCgoCall(),
		"memory": map[string]interface{}{
			"heap_alloc":   mem.HeapAlloc,
			"heap_sys":     mem.HeapSys,
			"heap_objects": mem.HeapObjects,
			"total_alloc":  mem.TotalAlloc,
			"gc_cycles":    mem.NumGC,
		},
	}
}
