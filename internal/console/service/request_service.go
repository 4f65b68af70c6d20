package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// LedgerReader — query boundary журнала заявок (двухъярусное чтение).
type LedgerReader interface {
	Get(ctx context.Context, requestID string) (*domain.Request, error)
}

// CatalogRepo — прямые выборки из долговременного яруса для списков
// и агрегатов: быстрый ярус хранит только одиночные снимки.
type CatalogRepo interface {
	GetSummaries(ctx context.Context, limit int) ([]domain.RequestSummary, error)
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

const defaultListLimit = 100

// RequestService отдает консоли состояние заявок и сводку дашборда.
type RequestService struct {
	ledger  LedgerReader
	catalog CatalogRepo
}

func NewRequestService(ledger LedgerReader, catalog CatalogRepo) *RequestService {
	return &RequestService{ledger: ledger, catalog: catalog}
}

// GetRequest возвращает полное состояние заявки с упорядоченной трассой.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	req, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("console: get request: %w", err)
	}
	return req, nil
}

// ListRequests возвращает сводки заявок, новые сверху.
func (s *RequestService) ListRequests(ctx context.Context, limit int) ([]domain.RequestSummary, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	summaries, err := s.catalog.GetSummaries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("console: list requests: %w", err)
	}
	return summaries, nil
}

// GetStats собирает агрегаты для дашборда.
func (s *RequestService) GetStats(ctx context.Context) (*domain.DashboardStats, error) {
	stats, err := s.catalog.GetDashboardStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("console: dashboard stats: %w", err)
	}
	return stats, nil
}
