package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/ledger"
	"github.com/xela07ax/docflow-gateway/internal/repository/postgres"
)

// Handler — intake boundary пайплайна поверх net/http.
type Handler struct {
	pipeline *Pipeline
	ledger   *ledger.Ledger
	logger   *zap.Logger
}

func NewHandler(p *Pipeline, l *ledger.Ledger, logger *zap.Logger) *Handler {
	return &Handler{
		pipeline: p,
		ledger:   l,
		logger:   logger.Named("http"),
	}
}

// Routes собирает маршруты data plane.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/process", h.handleProcess)
	mux.HandleFunc("GET /v1/requests/{id}", h.handleGetRequest)
	return TracingMiddleware(mux)
}

// processRequest — тело POST /v1/process. Заполняется ровно одно из
// text / payload / binary; source — декларированная подсказка источника.
type processRequest struct {
	Source    string         `json:"source,omitempty"`
	Text      string         `json:"text,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Binary    []byte         `json:"binary,omitempty"` // base64 в JSON
	Reference string         `json:"reference,omitempty"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var body processRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	defer r.Body.Close()

	content := buildContent(body)
	source := parseSource(body.Source)

	req, err := h.pipeline.Process(r.Context(), content, source)
	if err != nil {
		h.logger.Error("pipeline failure",
			zap.String("trace_id", extractTraceID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	req, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		h.logger.Error("request lookup failed", zap.String("request_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, req)
}

func buildContent(body processRequest) domain.Content {
	switch {
	case len(body.Payload) > 0:
		return domain.StructuredContent(body.Payload)
	case len(body.Binary) > 0:
		return domain.BinaryContent(body.Binary, body.Reference)
	default:
		return domain.TextContent(body.Text)
	}
}

func parseSource(s string) domain.SourceHint {
	switch domain.SourceHint(s) {
	case domain.SourceFile, domain.SourceStructured, domain.SourceMessage:
		return domain.SourceHint(s)
	}
	return domain.SourceUnspecified
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
