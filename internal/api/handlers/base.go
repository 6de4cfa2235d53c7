package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/eshaffer321/tablesplit-backend/internal/api/dto"
	"github.com/eshaffer321/tablesplit-backend/internal/application/service"
	"github.com/eshaffer321/tablesplit-backend/internal/domain/money"
	"github.com/eshaffer321/tablesplit-backend/internal/domain/splitter"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/storage"
)

// Base provides shared functionality for all handlers.
type Base struct {
	repo storage.Repository
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository) *Base {
	return &Base{repo: repo}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps a service or engine error to a status code.
func (b *Base) WriteServiceError(w http.ResponseWriter, err error) {
	status, apiErr := MapError(err)
	b.WriteError(w, status, apiErr)
}

// MapError maps an error to its HTTP status and response body.
func MapError(err error) (int, dto.APIError) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, dto.NotFoundError("split session")
	case errors.Is(err, storage.ErrOrderNotFound):
		return http.StatusNotFound, dto.NotFoundError("order")
	case errors.Is(err, storage.ErrStaleOrder), errors.Is(err, storage.ErrOrderClosed):
		return http.StatusConflict, dto.ConflictError(err.Error())
	case errors.Is(err, splitter.ErrCommitFailure):
		return http.StatusBadGateway, dto.CommitFailedError(err.Error())
	case splitter.IsValidation(err), errors.Is(err, money.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, dto.ValidationError(err.Error())
	default:
		return http.StatusInternalServerError, dto.InternalError()
	}
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// decodeJSON decodes a request body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
