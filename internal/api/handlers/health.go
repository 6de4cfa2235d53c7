package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eshaffer321/tablesplit-backend/internal/api/dto"
)

// SessionCounter reports how many split sessions are open.
type SessionCounter interface {
	ActiveSessions() int
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	sessions SessionCounter
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := dto.NewHealthResponse()
	if h.sessions != nil {
		response.ActiveSessions = h.sessions.ActiveSessions()
	}
	_ = json.NewEncoder(w).Encode(response)
}
