package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// ErrNotFound — запроса с таким id в журнале нет.
var ErrNotFound = errors.New("postgres: request not found")

func (s *Store) InsertRequest(ctx context.Context, req *domain.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, created_at, status, input_source, error)
		VALUES ($1, $2, $3, $4, $5)`,
		req.ID, req.CreatedAt, req.Status, req.InputSource, req.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert request: %w", err)
	}
	return nil
}

// updateJSONField — общий UPDATE для JSONB-колонок стадий конвейера.
// Статус обновляется той же командой, чтобы снимок оставался согласованным.
func (s *Store) updateJSONField(ctx context.Context, requestID, column string, value any, status domain.RequestStatus) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: marshal %s: %w", column, err)
	}
	query := fmt.Sprintf(
		"UPDATE requests SET %s = $1, status = $2, updated_at = now() WHERE id = $3", column)
	res, err := s.db.ExecContext(ctx, query, payload, status, requestID)
	if err != nil {
		return fmt.Errorf("postgres: update %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateInput(ctx context.Context, requestID string, input *domain.Content, source domain.SourceHint, status domain.RequestStatus) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("postgres: marshal input: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests SET input = $1, input_source = $2, status = $3, updated_at = now()
		WHERE id = $4`,
		payload, source, status, requestID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update input: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateClassification(ctx context.Context, requestID string, cls *domain.Classification, status domain.RequestStatus) error {
	return s.updateJSONField(ctx, requestID, "classification", cls, status)
}

func (s *Store) UpdateProcessing(ctx context.Context, requestID string, result *domain.ExtractionResult, status domain.RequestStatus) error {
	return s.updateJSONField(ctx, requestID, "processing", result, status)
}

func (s *Store) UpdateAction(ctx context.Context, requestID string, action *domain.ActionDecision, status domain.RequestStatus) error {
	return s.updateJSONField(ctx, requestID, "action", action, status)
}

func (s *Store) UpdateError(ctx context.Context, requestID, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests SET error = $1, status = $2, updated_at = now() WHERE id = $3`,
		message, domain.StatusError, requestID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) InsertTrace(ctx context.Context, requestID string, entry domain.TraceEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal trace payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO traces (request_id, ts, stage, action, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		requestID, entry.Timestamp, entry.Stage, entry.Action, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trace: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	req := &domain.Request{}
	var input, cls, processing, action sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, status, input_source, input, classification, processing, action, error
		FROM requests WHERE id = $1`, requestID,
	).Scan(&req.ID, &req.CreatedAt, &req.Status, &req.InputSource,
		&input, &cls, &processing, &action, &req.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get request: %w", err)
	}

	if err := unmarshalNullable(input, &req.Input); err != nil {
		return nil, fmt.Errorf("postgres: decode input: %w", err)
	}
	if err := unmarshalNullable(cls, &req.Classification); err != nil {
		return nil, fmt.Errorf("postgres: decode classification: %w", err)
	}
	if err := unmarshalNullable(processing, &req.Processing); err != nil {
		return nil, fmt.Errorf("postgres: decode processing: %w", err)
	}
	if err := unmarshalNullable(action, &req.Action); err != nil {
		return nil, fmt.Errorf("postgres: decode action: %w", err)
	}

	traces, err := s.GetTraces(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req.Traces = traces
	return req, nil
}

// GetTraces возвращает журнал решений в порядке записи.
func (s *Store) GetTraces(ctx context.Context, requestID string) ([]domain.TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, stage, action, payload
		FROM traces WHERE request_id = $1 ORDER BY ts, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get traces: %w", err)
	}
	defer rows.Close()

	var traces []domain.TraceEntry
	for rows.Next() {
		var entry domain.TraceEntry
		var payload sql.NullString
		if err := rows.Scan(&entry.Timestamp, &entry.Stage, &entry.Action, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan trace: %w", err)
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("postgres: decode trace payload: %w", err)
			}
		}
		traces = append(traces, entry)
	}
	return traces, rows.Err()
}

func (s *Store) GetSummaries(ctx context.Context, limit int) ([]domain.RequestSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, status
		FROM requests ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list requests: %w", err)
	}
	defer rows.Close()

	var out []domain.RequestSummary
	for rows.Next() {
		var s domain.RequestSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Status); err != nil {
			return nil, fmt.Errorf("postgres: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func unmarshalNullable[T any](src sql.NullString, dst **T) error {
	if !src.Valid || src.String == "" || src.String == "null" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(src.String), v); err != nil {
		return err
	}
	*dst = v
	return nil
}
