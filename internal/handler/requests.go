package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	linkerModels "stitch/internal/domain/models/linker"
	"stitch/internal/httputil"
	requestsSvc "stitch/internal/service/requests"
)

// RequestHandler handles correlation HTTP requests.
// Handlers only communicate with services, never repositories.
type RequestHandler struct {
	requests *requestsSvc.Service
	logger   *slog.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(requests *requestsSvc.Service, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{
		requests: requests,
		logger:   logger,
	}
}

// IngestRequest correlates and stores one request
// POST /api/requests
// Returns 201 with the LinkingResult; 400 on malformed input; 503 when a
// query executor fails (the caller decides whether to retry).
func (h *RequestHandler) IngestRequest(w http.ResponseWriter, r *http.Request) {
	var req linkerModels.LinkingRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.requests.Ingest(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, result)
}

// AttachResponse backfills response metadata onto a stored request
// POST /api/requests/{id}/response
func (h *RequestHandler) AttachResponse(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	if requestID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "request id is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !json.Valid(body) {
		httputil.RespondError(w, http.StatusBadRequest, "response body must be JSON")
		return
	}

	if err := h.requests.AttachResponse(r.Context(), requestID, body); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetRequest retrieves a stored request record
// GET /api/requests/{id}
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")

	record, err := h.requests.GetRequest(r.Context(), requestID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, record)
}

// GetConversation lists every stored record of a conversation
// GET /api/conversations/{id}
func (h *RequestHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	records, err := h.requests.GetConversation(r.Context(), conversationID)
	if err != nil {
		handleError(w, err)
		return
	}
	if records == nil {
		records = []linkerModels.StoredRequestRecord{}
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"requests":        records,
	})
}

// HealthCheck reports service liveness
// GET /health
func (h *RequestHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
