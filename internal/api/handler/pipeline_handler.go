package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/pipeline"
)

// Runner starts orchestrator invocations.
type Runner interface {
	RunStreaming(ctx context.Context) (model.RunSummary, error)
	RunBatch(ctx context.Context, refs []model.ObjectRef) (model.RunSummary, error)
}

// Handler serves the pipeline API.
type Handler struct {
	runner   Runner
	ledger   *pipeline.Ledger
	tracker  *pipeline.Tracker
	cleanser *pipeline.Cleanser
	exporter *pipeline.Exporter
	log      *logger.Logger
}

func New(runner Runner, ledger *pipeline.Ledger, tracker *pipeline.Tracker, cleanser *pipeline.Cleanser, exporter *pipeline.Exporter, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		runner:   runner,
		ledger:   ledger,
		tracker:  tracker,
		cleanser: cleanser,
		exporter: exporter,
		log:      log.With("component", "Handler"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type runResponse struct {
	model.RunSummary
	Error string `json:"error,omitempty"`
}

type batchRequest struct {
	Objects []model.ObjectRef `json:"objects"`
}

// RunStreaming runs one streaming invocation synchronously.
// @Summary Run the streaming pipeline
// @Description Discover unprocessed trip-event files and load each into the warehouse
// @Tags runs
// @Produce json
// @Success 200 {object} model.RunSummary "Run summary"
// @Failure 500 {object} errorResponse "Run aborted"
// @Router /runs/streaming [post]
func (h *Handler) RunStreaming(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunStreaming(r.Context())
	h.writeRun(w, summary, err)
}

// RunBatch runs one batch invocation for the objects in the request.
// @Summary Run the batch pipeline
// @Description Load the named monthly trip files
// @Tags runs
// @Accept json
// @Produce json
// @Param request body batchRequest true "Objects to load"
// @Success 200 {object} model.RunSummary "Run summary"
// @Failure 400 {object} errorResponse "Invalid request payload"
// @Failure 500 {object} errorResponse "Run aborted"
// @Router /runs/batch [post]
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if len(req.Objects) == 0 {
		writeError(w, http.StatusBadRequest, "At least one object is required")
		return
	}
	for _, o := range req.Objects {
		if o.Key == "" {
			writeError(w, http.StatusBadRequest, "Every object needs a key")
			return
		}
	}

	summary, err := h.runner.RunBatch(r.Context(), req.Objects)
	h.writeRun(w, summary, err)
}

func (h *Handler) writeRun(w http.ResponseWriter, summary model.RunSummary, err error) {
	if err != nil {
		h.log.Error("run aborted", "invocation_id", summary.InvocationID, "error", err)
		writeJSON(w, http.StatusInternalServerError, runResponse{RunSummary: summary, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunSummary: summary})
}

// GetLedgerEntry returns the processed-file entry for a pipeline ID.
// @Summary Get a processed-file entry
// @Tags ledger
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {object} model.LedgerEntry "Ledger entry"
// @Failure 404 {object} errorResponse "Not processed"
// @Router /ledger/{id} [get]
func (h *Handler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/ledger/")
	if !ok {
		return
	}
	entry, found, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		h.log.Error("ledger lookup failed", "pipeline_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read ledger")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Not processed")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GetStages returns the stage records of a pipeline ID in write order.
// @Summary List stage records for a pipeline
// @Tags stages
// @Produce json
// @Param id path string true "Pipeline ID"
// @Success 200 {array} model.StageRecord "Stage records"
// @Router /stages/{id} [get]
func (h *Handler) GetStages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/stages/")
	if !ok {
		return
	}
	records, err := h.tracker.History(r.Context(), id)
	if err != nil {
		h.log.Error("stage lookup failed", "pipeline_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read stages")
		return
	}
	if records == nil {
		records = []model.StageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pipeline_id": id,
		"stages":      records,
		"count":       len(records),
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID extracts everything after prefix. Streaming pipeline IDs are object
// keys and may contain slashes.
func pathID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, "Invalid path")
		return "", false
	}
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Pipeline ID is required")
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
