// Package server exposes the detection pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/nvr-ai/go-facedetect/config"
	"github.com/nvr-ai/go-facedetect/detector"
	"github.com/nvr-ai/go-facedetect/images"
	"github.com/nvr-ai/go-facedetect/inference"
	"github.com/nvr-ai/go-facedetect/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

//go:embed static/index.html
var indexHTML []byte

// Detector runs the pipeline once per call.
type Detector interface {
	Detect(ctx context.Context, requestID string) (*detector.Result, error)
}

// Server routes HTTP requests to a Detector.
type Server struct {
	detector Detector
	snapshot config.SnapshotConfig
	stats    inference.StatsReporter
	metrics  *Metrics
	logger   *zap.Logger
	router   *mux.Router
}

// New creates a server.
//
// Arguments:
//   - det: The pipeline.
//   - snapshot: Defaults for the snapshot endpoint.
//   - stats: Optional inference statistics for /metrics; may be nil.
//   - logger: The request logger.
//
// Returns:
//   - *Server: The server; Handler returns its routes.
func New(det Detector, snapshot config.SnapshotConfig, stats inference.StatsReporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		detector: det,
		snapshot: snapshot,
		stats:    stats,
		metrics:  NewMetrics(),
		logger:   logger,
	}

	r := mux.NewRouter()
	r.Use(s.withRequestID, s.withLogging, s.withRecovery)
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/detect", s.handleDetect).Methods("GET")
	r.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// DetectResponse is the success envelope of /detect.
type DetectResponse struct {
	Success    bool            `json:"success"`
	NumFaces   int             `json:"num_faces"`
	Detections []DetectionJSON `json:"detections"`
}

// DetectionJSON is one detection in the envelope.
type DetectionJSON struct {
	BBox       [4]float32 `json:"bbox"`
	Confidence float32    `json:"confidence"`
	ClassID    int        `json:"class_id"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewDetectResponse builds the success envelope; detections is never null.
func NewDetectResponse(detections []postprocess.Detection) DetectResponse {
	out := make([]DetectionJSON, 0, len(detections))
	for _, d := range detections {
		out = append(out, DetectionJSON{
			BBox:       [4]float32{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
			Confidence: d.Confidence,
			ClassID:    d.Class,
		})
	}
	return DetectResponse{
		Success:    true,
		NumFaces:   len(out),
		Detections: out,
	}
}

// StatusFor maps a pipeline error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, inference.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, detector.ErrCapture):
		return http.StatusServiceUnavailable
	case errors.Is(err, detector.ErrEncode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, detector.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	res, ok := s.detect(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewDetectResponse(res.Detections))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sigma := s.snapshot.BlurSigma
	if v := r.URL.Query().Get("blur"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			sendErrorResponse(w, "invalid blur "+strconv.Quote(v), http.StatusBadRequest)
			return
		}
		sigma = parsed
	}
	format, err := images.ParseImageFormat(r.URL.Query().Get("format"))
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, ok := s.detect(w, r)
	if !ok {
		return
	}

	img, err := res.Frame.ToImage()
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	frameSize := image.Pt(res.Frame.Width, res.Frame.Height)
	detections := postprocess.Rescale(res.Detections, res.Space, frameSize)
	boxes := make([]images.Rect, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
	}

	quality := s.snapshot.JPEGQuality
	if format == images.FormatWebP {
		quality = s.snapshot.WebPQuality
	}
	var buf bytes.Buffer
	if err := images.Encode(&buf, images.Anonymize(img, boxes, sigma), format, quality); err != nil {
		sendErrorResponse(w, errors.Wrap(err, "failed to encode snapshot").Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Num-Faces", strconv.Itoa(len(boxes)))
	_, _ = w.Write(buf.Bytes())
}

// detect runs the pipeline and writes the failure envelope when it fails.
func (s *Server) detect(w http.ResponseWriter, r *http.Request) (*detector.Result, bool) {
	requestID := RequestIDFromContext(r.Context())
	res, err := s.detector.Detect(r.Context(), requestID)
	if err != nil {
		s.metrics.RecordFailure(err)
		s.logger.Warn("detection failed", zap.String("request_id", requestID), zap.Error(err))
		sendErrorResponse(w, err.Error(), StatusFor(err))
		return nil, false
	}
	s.metrics.RecordSuccess(res)
	return res, true
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"pipeline": s.metrics.Snapshot(),
		"runtime":  s.metrics.RuntimeStats(),
	}
	if s.stats != nil {
		stats := s.stats.Stats()
		response["inference"] = map[string]interface{}{
			"runs":         stats.Runs,
			"failures":     stats.Failures,
			"last_ms":      float64(stats.LastTime) / float64(time.Millisecond),
			"average_ms":   float64(stats.Average()) / float64(time.Millisecond),
			"total_time_s": stats.TotalTime.Seconds(),
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.metrics.RecordFailure(errors.Errorf("panic: %v", p))
				s.logger.Error("handler panicked",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Any("panic", p),
					zap.Stack("stack"),
				)
				sendErrorResponse(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
