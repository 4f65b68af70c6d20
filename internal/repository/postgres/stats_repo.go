package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// GetDashboardStats собирает сводку по журналу запросов для консоли.
func (s *Store) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByAction:   map[string]int{},
	}

	// 1. Общие счетчики и всплески риска за последний час
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'error'),
			COUNT(*) FILTER (WHERE action->>'action_type' = 'RISK_ALERT'
				AND created_at > NOW() - INTERVAL '60 minutes')
		FROM requests`).Scan(
		&stats.TotalRequests,
		&stats.ErrorRequests,
		&stats.HighRiskLastHour,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard totals: %w", err)
	}

	// 2. Разрезы по статусу, приоритету и выбранному действию
	if err := s.countBy(ctx, `SELECT status, COUNT(*) FROM requests GROUP BY status`, stats.ByStatus); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, `
		SELECT classification->>'priority', COUNT(*)
		FROM requests WHERE classification IS NOT NULL
		GROUP BY classification->>'priority'`, stats.ByPriority); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, `
		SELECT action->>'action_type', COUNT(*)
		FROM requests WHERE action IS NOT NULL
		GROUP BY action->>'action_type'`, stats.ByAction); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *Store) countBy(ctx context.Context, query string, dst map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres: dashboard breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("postgres: scan breakdown: %w", err)
		}
		dst[key] = n
	}
	return rows.Err()
}
