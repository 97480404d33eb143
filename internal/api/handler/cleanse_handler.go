package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/pipeline"
)

type cleanseRequest struct {
	Records []model.EncodedRecord `json:"records"`
}

type cleanseResponse struct {
	Records []model.EncodedOutput   `json:"records"`
	Exports []pipeline.ExportResult `json:"exports,omitempty"`
}

// Cleanse validates and transforms a batch of trip events. Data fields are
// base64, as in a delivery-stream transformation request; a record that does
// not decode comes back ProcessingFailed with its data as sent.
// @Summary Cleanse trip events
// @Description Validate and transform a batch of base64 trip events
// @Tags cleanse
// @Accept json
// @Produce json
// @Param request body cleanseRequest true "Records"
// @Param export query bool false "Write Ok records to the parquet sink"
// @Success 200 {object} cleanseResponse "One output per input"
// @Failure 400 {object} errorResponse "Invalid request payload"
// @Failure 500 {object} errorResponse "Export failed"
// @Router /cleanse [post]
func (h *Handler) Cleanse(w http.ResponseWriter, r *http.Request) {
	var req cleanseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	export := false
	if v := r.URL.Query().Get("export"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "export must be a boolean")
			return
		}
		export = b
	}

	out, decoded := h.cleanser.CleanseEncoded(r.Context(), req.Records)
	resp := cleanseResponse{Records: out}

	if export && h.exporter != nil {
		results, err := h.exporter.Export(r.Context(), decoded)
		if err != nil {
			h.log.Error("export failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to export records")
			return
		}
		resp.Exports = results
	}
	writeJSON(w, http.StatusOK, resp)
}
