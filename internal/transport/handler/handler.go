package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/luismateoh/Aldebaran-sub001/internal/config"
	"github.com/luismateoh/Aldebaran-sub001/internal/entities"
	"github.com/luismateoh/Aldebaran-sub001/internal/fetcher"
	"github.com/luismateoh/Aldebaran-sub001/internal/log"
	"github.com/luismateoh/Aldebaran-sub001/internal/metrics"
	"github.com/luismateoh/Aldebaran-sub001/internal/processor"
	"github.com/luismateoh/Aldebaran-sub001/internal/r2"
)

// jobHistoryLimit caps how many journal rows a status response carries.
const jobHistoryLimit = 5

// Optimizer is the queue surface the handler drives.
type Optimizer interface {
	Enqueue(ctx context.Context, eventID, sourceURL string) (position int, estimatedSeconds int)
	Status(ctx context.Context, eventID string) entities.EventStatus
	Snapshot() entities.QueueSnapshot
	ProcessOne(ctx context.Context, eventID, sourceURL string) (*entities.OptimizationResult, error)
}

// Journal persists priority-path job records and serves per-event history;
// the queue journals its own items.
type Journal interface {
	RecordEnqueue(ctx context.Context, job entities.OptimizationJob) error
	RecordOutcome(ctx context.Context, id uuid.UUID, state entities.ItemState, lastError string) error
	JobsByEvent(ctx context.Context, eventID string, limit int) ([]entities.OptimizationJob, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	queue     Optimizer
	journal   Journal
	db        Pinger
	metrics   *metrics.QueueMetrics
	cfg       *config.Config
	validator *validator.Validate
	logger    *log.Logger
}

func New(q Optimizer, journal Journal, db Pinger, m *metrics.QueueMetrics, cfg *config.Config, logger *log.Logger) *Handler {
	return &Handler{
		queue:     q,
		journal:   journal,
		db:        db,
		metrics:   m,
		cfg:       cfg,
		validator: validator.New(),
		logger:    logger,
	}
}

// Optimize handles POST /api/optimize. priority=true runs the whole
// pipeline inline and returns the result; otherwise the request joins
// the queue and the caller gets a position plus a rough wait estimate.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	if req.Priority {
		h.optimizeNow(w, r, req)
		return
	}

	pos, estimate := h.queue.Enqueue(r.Context(), req.EventID, req.ImageURL)
	writeJSON(w, http.StatusOK, QueuedResponse{
		Success:       true,
		QueuePosition: pos,
		EstimatedTime: estimate,
	})
}

func (h *Handler) optimizeNow(w http.ResponseWriter, r *http.Request, req OptimizeRequest) {
	if h.metrics != nil {
		h.metrics.EnqueueTotal.WithLabelValues("priority").Inc()
	}

	jobID := uuid.New()
	if h.journal != nil {
		if err := h.journal.RecordEnqueue(r.Context(), entities.OptimizationJob{
			ID:        jobID,
			EventID:   req.EventID,
			SourceURL: req.ImageURL,
			Priority:  true,
			Status:    entities.StatePending,
		}); err != nil {
			h.logger.Warnw("journal priority record failed", "event_id", req.EventID, "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Queue.ProcessTimeout())
	defer cancel()

	res, err := h.queue.ProcessOne(ctx, req.EventID, req.ImageURL)
	if err != nil {
		h.logger.Errorw("priority optimization failed", "event_id", req.EventID, "error", err)
		h.journalOutcome(r.Context(), jobID, entities.StateFailed, err.Error())
		if h.metrics != nil {
			h.metrics.ProcessedTotal.WithLabelValues("failed").Inc()
		}
		writeJSONError(w, err.Error(), errorStatus(err))
		return
	}

	h.journalOutcome(r.Context(), jobID, entities.StateSucceeded, "")
	if h.metrics != nil {
		if res.Cached {
			h.metrics.ProcessedTotal.WithLabelValues("cached").Inc()
		} else {
			h.metrics.ProcessedTotal.WithLabelValues("succeeded").Inc()
		}
	}

	writeJSON(w, http.StatusOK, PriorityResponse{
		Success:          true,
		OptimizedURL:     res.OptimizedURL,
		ThumbnailURL:     res.ThumbnailURL,
		OriginalSize:     res.OriginalSize,
		OptimizedSize:    res.OptimizedSize,
		CompressionRatio: res.CompressionRatio,
		Cached:           res.Cached,
	})
}

func (h *Handler) journalOutcome(ctx context.Context, id uuid.UUID, state entities.ItemState, lastError string) {
	if h.journal == nil {
		return
	}
	if err := h.journal.RecordOutcome(ctx, id, state, lastError); err != nil {
		h.logger.Warnw("journal outcome record failed", "job_id", id, "error", err)
	}
}

// QueueStatus handles GET /api/optimize. With an eventId it returns the
// per-event status; without one, the aggregate queue view.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		snap := h.queue.Snapshot()
		items := make([]QueuePreviewItem, 0, len(snap.NextItems))
		for _, it := range snap.NextItems {
			items = append(items, QueuePreviewItem{EventID: it.EventID, Timestamp: it.EnqueuedAt})
		}
		writeJSON(w, http.StatusOK, QueueViewResponse{
			QueueLength: snap.Length,
			Processing:  snap.Processing,
			NextItems:   items,
		})
		return
	}

	st := h.queue.Status(r.Context(), eventID)
	writeJSON(w, http.StatusOK, StatusResponse{
		EventID:       st.EventID,
		InQueue:       st.InQueue,
		QueuePosition: st.QueuePosition,
		Optimized:     st.Optimized,
		OptimizedURL:  st.OptimizedURL,
		Failed:        st.Failed,
		LastError:     st.LastError,
		History:       h.jobHistory(r.Context(), eventID),
	})
}

// jobHistory loads the most recent journal rows for an event. The journal
// is best-effort, so a lookup failure only drops the history from the
// response.
func (h *Handler) jobHistory(ctx context.Context, eventID string) []JobHistoryItem {
	if h.journal == nil {
		return nil
	}
	jobs, err := h.journal.JobsByEvent(ctx, eventID, jobHistoryLimit)
	if err != nil {
		h.logger.Errorw("job history lookup failed", "eventId", eventID, "error", err)
		return nil
	}
	items := make([]JobHistoryItem, 0, len(jobs))
	for _, job := range jobs {
		item := JobHistoryItem{
			ID:        job.ID.String(),
			Priority:  job.Priority,
			Status:    string(job.Status),
			CreatedAt: job.CreatedAt,
		}
		if job.LastError != nil {
			item.LastError = *job.LastError
		}
		items = append(items, item)
	}
	return items
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Errorw("database health check failed", "error", err)
			http.Error(w, "database unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("OK"))
}

// errorStatus maps pipeline failures onto response codes: unreachable
// collaborators are 502s, undecodable images are the caller's problem.
func errorStatus(err error) int {
	var fetchErr *fetcher.FetchError
	var decodeErr *processor.DecodeError
	var storeErr *r2.StoreError

	switch {
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr), errors.As(err, &storeErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
