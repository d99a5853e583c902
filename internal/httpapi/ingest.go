package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/httpserver"
	"go.healthexport.dev/ingest/internal/ingest"
	"go.healthexport.dev/ingest/internal/payload"
	"go.healthexport.dev/ingest/internal/timeout"
)

type ingestError struct {
	MetricType   string `json:"metric_type"`
	ErrorMessage string `json:"error_message"`
	Index        *int   `json:"index,omitempty"`
}

type ingestResponse struct {
	Success          bool          `json:"success"`
	ProcessedCount   int           `json:"processed_count"`
	FailedCount      int           `json:"failed_count"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	ProcessingStatus string        `json:"processing_status"`
	Errors           []ingestError `json:"errors"`
	RawIngestionID   *uuid.UUID    `json:"raw_ingestion_id,omitempty"`
}

type acceptedResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, false)
}

func (s *Server) handleIngestAsync(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, true)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, forceAsync bool) {
	authCtx, _ := authContextFrom(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpserver.RenderError(w, http.StatusBadRequest, err)
		return
	}

	started := time.Now()
	result, err := s.coordinator.Ingest(r.Context(), authCtx, body, ingest.Options{
		Async:    forceAsync,
		ClientIP: clientIP(r),
	})
	elapsed := time.Since(started)

	if err != nil {
		renderIngestError(w, err)
		return
	}

	if result.JobID != nil {
		httpserver.RenderJSON(w, http.StatusAccepted, acceptedResponse{
			JobID:   *result.JobID,
			Status:  "pending",
			Message: result.Status.Message(),
		})
		return
	}

	status, httpStatus := processingStatus(result.Status)

	errs := make([]ingestError, 0, len(result.ValidationErrors)+len(result.BatchErrors)+len(result.SkippedParsing))
	for i, ve := range result.ValidationErrors {
		idx := i
		errs = append(errs, ingestError{MetricType: string(ve.Family), ErrorMessage: ve.Reason, Index: &idx})
	}
	for _, be := range result.BatchErrors {
		errs = append(errs, ingestError{MetricType: string(be.Family), ErrorMessage: be.Message})
	}
	for _, pe := range result.SkippedParsing {
		errs = append(errs, ingestError{MetricType: pe.Family, ErrorMessage: pe.Message})
	}

	httpserver.RenderJSON(w, httpStatus, ingestResponse{
		Success:          result.FailedCount == 0 && len(result.ValidationErrors) == 0,
		ProcessedCount:   result.ProcessedCount,
		FailedCount:      result.FailedCount + len(result.ValidationErrors),
		ProcessingTimeMs: elapsed.Milliseconds(),
		ProcessingStatus: status,
		Errors:           errs,
		RawIngestionID:   &result.RawID,
	})
}

func processingStatus(status timeout.Status) (string, int) {
	switch status.Kind() {
	case timeout.StatusSuccess:
		return "processed", http.StatusOK
	case timeout.StatusPartialSuccess:
		return "partial_success", http.StatusOK
	case timeout.StatusTimeout:
		return "timeout", http.StatusRequestTimeout
	default:
		return "error", http.StatusInternalServerError
	}
}

func renderIngestError(w http.ResponseWriter, err error) {
	var dialectErr *payload.DialectParseError

	switch {
	case errors.Is(err, payload.ErrPayloadTooLarge):
		httpserver.RenderError(w, http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, payload.ErrStructuralUnsafe):
		httpserver.RenderError(w, http.StatusBadRequest, err)
	case errors.Is(err, payload.ErrParseTimeout):
		httpserver.RenderError(w, http.StatusRequestTimeout, err)
	case errors.As(err, &dialectErr):
		httpserver.RenderError(w, http.StatusBadRequest, err)
	default:
		httpserver.RenderError(w, http.StatusInternalServerError, err)
	}
}
