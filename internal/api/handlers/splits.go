package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/tablesplit-backend/internal/api/dto"
	"github.com/eshaffer321/tablesplit-backend/internal/application/service"
)

// SplitsHandler handles split session HTTP requests.
type SplitsHandler struct {
	*Base
	splitService *service.SplitService
}

// NewSplitsHandler creates a new split session handler.
func NewSplitsHandler(splitService *service.SplitService) *SplitsHandler {
	return &SplitsHandler{
		Base:         &Base{},
		splitService: splitService,
	}
}

// Start handles POST /api/orders/{id}/split-sessions - opens a session.
func (h *SplitsHandler) Start(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("order ID is required"))
		return
	}

	view, err := h.splitService.StartSession(r.Context(), orderID)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, toSessionResponse(view))
}

// List handles GET /api/split-sessions - lists open sessions.
func (h *SplitsHandler) List(w http.ResponseWriter, r *http.Request) {
	views := h.splitService.ListSessions()

	response := dto.SessionListResponse{
		Sessions: make([]dto.SessionResponse, 0, len(views)),
		Count:    len(views),
	}
	for _, v := range views {
		response.Sessions = append(response.Sessions, toSessionResponse(v))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/split-sessions/{sid}.
func (h *SplitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.splitService.GetSession(chi.URLParam(r, "sid"))
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

// Cancel handles DELETE /api/split-sessions/{sid}.
func (h *SplitsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.splitService.Cancel(chi.URLParam(r, "sid")); err != nil {
		h.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddBucket handles POST /api/split-sessions/{sid}/buckets.
func (h *SplitsHandler) AddBucket(w http.ResponseWriter, r *http.Request) {
	var req dto.AddBucketRequest
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	view, err := h.splitService.AddBucket(chi.URLParam(r, "sid"), req.Label)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, toSessionResponse(view))
}

// RemoveBucket handles DELETE /api/split-sessions/{sid}/buckets/{index}.
func (h *SplitsHandler) RemoveBucket(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("bucket index must be an integer"))
		return
	}

	view, err := h.splitService.RemoveBucket(chi.URLParam(r, "sid"), index)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

// Move handles POST /api/split-sessions/{sid}/moves.
func (h *SplitsHandler) Move(w http.ResponseWriter, r *http.Request) {
	req, ok := h.quantityRequest(w, r)
	if !ok {
		return
	}

	view, err := h.splitService.MoveQuantity(chi.URLParam(r, "sid"), req.ProductID, req.BucketIndex, req.Quantity)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

// Return handles POST /api/split-sessions/{sid}/returns.
func (h *SplitsHandler) Return(w http.ResponseWriter, r *http.Request) {
	req, ok := h.quantityRequest(w, r)
	if !ok {
		return
	}

	view, err := h.splitService.RemoveQuantity(chi.URLParam(r, "sid"), req.ProductID, req.BucketIndex, req.Quantity)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toSessionResponse(view))
}

// Preview handles GET /api/split-sessions/{sid}/preview.
func (h *SplitsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	result, err := h.splitService.Preview(sid)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.PreviewResponse{SessionID: sid, Split: result})
}

// Finalize handles POST /api/split-sessions/{sid}/finalize.
func (h *SplitsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	fr, err := h.splitService.Finalize(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.FinalizeResponse{
		SplitID:     fr.Record.ID,
		OrderID:     fr.Record.OrderID,
		NewOrderIDs: fr.NewOrderIDs,
		Split:       fr.Split,
	})
}

func (h *SplitsHandler) quantityRequest(w http.ResponseWriter, r *http.Request) (dto.QuantityRequest, bool) {
	var req dto.QuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return req, false
	}
	if err := req.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return req, false
	}
	return req, true
}

func toSessionResponse(v *service.SessionView) dto.SessionResponse {
	return dto.SessionResponse{
		ID:           v.ID,
		OrderID:      v.OrderID,
		OrderVersion: v.OrderVersion,
		Lines:        v.Lines,
		Buckets:      v.Buckets,
		CreatedAt:    v.CreatedAt.UTC().Format(time.RFC3339),
		LastUsed:     v.LastUsed.UTC().Format(time.RFC3339),
	}
}
