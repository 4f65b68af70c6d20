package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/repository/postgres"
)

// RequestReader Описываем, что нам нужно от сервиса
type RequestReader interface {
	GetRequest(ctx context.Context, id string) (*domain.Request, error)
	ListRequests(ctx context.Context, limit int) ([]domain.RequestSummary, error)
}

type RequestsHandler struct {
	service RequestReader
}

func NewRequestsHandler(s RequestReader) *RequestsHandler {
	return &RequestsHandler{service: s}
}

// List отдает сводки заявок, новые сверху. ?limit=N ограничивает выборку.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	summaries, err := h.service.ListRequests(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to fetch requests", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// Get отдает полное состояние заявки вместе с трассой решений.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			http.Error(w, "Request not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}
