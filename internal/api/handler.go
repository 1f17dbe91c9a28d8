package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/electrondump/internal/config"
	"github.com/gyaneshwarpardhi/electrondump/internal/engine"
	"github.com/gyaneshwarpardhi/electrondump/internal/event"
	"github.com/gyaneshwarpardhi/electrondump/internal/metrics"
	"github.com/gyaneshwarpardhi/electrondump/internal/store"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 8 << 20
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	ledger *store.Ledger // nil when the ledger is disabled
	jobID  string
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, loader *config.Loader, ledger *store.Ledger, jobID string) http.Handler {
	h := &Handler{eng: eng, loader: loader, ledger: ledger, jobID: jobID, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/schema", h.schema)
	h.mux.HandleFunc("GET /v1/job", h.job)
	h.mux.HandleFunc("GET /v1/jobs", h.listJobs)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/events: synchronous single-event ingestion.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.eng.ProcessSync(r.Context(), &ev)
	switch {
	case errors.Is(err, engine.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, engine.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if res.Error != "" {
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/events/batch: async batch ingestion (up to 100 events).
// Events are queued in body order.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var events []*event.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&events); err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(events) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(events), maxBatchSize))
		return
	}

	queued := 0
	for _, ev := range events {
		if ev == nil {
			continue
		}
		// Stop at the first rejection so accepted events stay a prefix of
		// the batch and arrival order is preserved.
		if !h.eng.ProcessAsync(ev) {
			break
		}
		queued++
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   h.jobID,
		"total":    len(events),
		"queued":   queued,
		"rejected": len(events) - queued,
	})
}

// GET /v1/schema: the header columns of the running job.
func (h *Handler) schema(w http.ResponseWriter, r *http.Request) {
	s := h.eng.Schema()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"max_objects": s.MaxObjects,
		"width":       s.Width(),
		"columns":     s.Columns(),
		"predicate":   h.eng.Predicate(),
	})
}

// GET /v1/job: counters for the running job.
func (h *Handler) job(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": h.jobID,
		"stats":  h.eng.Stats(),
	})
}

// GET /v1/jobs?limit=N: past jobs from the ledger.
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusNotFound, "job ledger is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := h.ledger.ListJobs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// POST /v1/config/reload: re-read the config file. Hooks registered on the
// loader decide what the running job picks up.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader.Path() == "" {
		writeError(w, http.StatusConflict, "running on built-in defaults, nothing to reload")
		return
	}
	if _, err := h.loader.Reload(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidConfig) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":  true,
		"predicate": h.eng.Predicate(),
	})
}

// GET /healthz: always 200.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if event queue >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
