package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// FastStore — быстрый ярус журнала (Redis). Промах или отказ здесь
// не фатален: истина всегда в долговременном ярусе.
type FastStore interface {
	SaveSnapshot(ctx context.Context, req *domain.Request) error
	// LoadSnapshot возвращает (nil, nil) при промахе кэша.
	LoadSnapshot(ctx context.Context, requestID string) (*domain.Request, error)
}

// DurableStore — долговременный ярус (Postgres), источник истины.
type DurableStore interface {
	InsertRequest(ctx context.Context, req *domain.Request) error
	UpdateInput(ctx context.Context, requestID string, input *domain.Content, source domain.SourceHint, status domain.RequestStatus) error
	UpdateClassification(ctx context.Context, requestID string, cls *domain.Classification, status domain.RequestStatus) error
	UpdateProcessing(ctx context.Context, requestID string, result *domain.ExtractionResult, status domain.RequestStatus) error
	UpdateAction(ctx context.Context, requestID string, action *domain.ActionDecision, status domain.RequestStatus) error
	UpdateError(ctx context.Context, requestID, message string) error
	InsertTrace(ctx context.Context, requestID string, entry domain.TraceEntry) error
	GetRequest(ctx context.Context, requestID string) (*domain.Request, error)
}

// Ledger — единственный владелец персистентного состояния заявок.
// Каждая запись идет синхронно: сначала долговременный ярус, затем
// быстрый. Отказ быстрого яруса только логируется.
type Ledger struct {
	fast    FastStore
	durable DurableStore
	logger  *zap.Logger
}

func New(fast FastStore, durable DurableStore, logger *zap.Logger) *Ledger {
	return &Ledger{
		fast:    fast,
		durable: durable,
		logger:  logger.Named("ledger"),
	}
}

// Initialize создает новую заявку с уникальным id и статусом initialized.
func (l *Ledger) Initialize(ctx context.Context) (*domain.Request, error) {
	req := &domain.Request{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Status:    domain.StatusInitialized,
		Traces:    []domain.TraceEntry{},
	}
	if err := l.durable.InsertRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("ledger: initialize: %w", err)
	}
	l.refreshFast(ctx, req)
	return req, nil
}

// RecordInput фиксирует принятое содержимое и переводит заявку
// в input_received.
func (l *Ledger) RecordInput(ctx context.Context, req *domain.Request, content domain.Content, source domain.SourceHint) error {
	req.Input = &content
	req.InputSource = source
	req.Status = domain.StatusInputReceived

	if err := l.durable.UpdateInput(ctx, req.ID, req.Input, source, req.Status); err != nil {
		return fmt.Errorf("ledger: record input: %w", err)
	}
	l.refreshFast(ctx, req)
	return nil
}

// RecordClassification фиксирует вердикт классификатора.
func (l *Ledger) RecordClassification(ctx context.Context, req *domain.Request, cls domain.Classification) error {
	req.Classification = &cls
	req.Status = domain.StatusClassified

	if err := l.durable.UpdateClassification(ctx, req.ID, req.Classification, req.Status); err != nil {
		return fmt.Errorf("ledger: record classification: %w", err)
	}
	l.refreshFast(ctx, req)
	return nil
}

// RecordProcessingResult фиксирует результат извлечения полей.
func (l *Ledger) RecordProcessingResult(ctx context.Context, req *domain.Request, result domain.ExtractionResult) error {
	req.Processing = &result
	req.Status = domain.StatusProcessed

	if err := l.durable.UpdateProcessing(ctx, req.ID, req.Processing, req.Status); err != nil {
		return fmt.Errorf("ledger: record processing: %w", err)
	}
	l.refreshFast(ctx, req)
	return nil
}

// RecordActionResult фиксирует решение маршрутизатора и исход диспатча.
// Статус становится action_completed даже при неуспешном диспатче:
// провал действия описан внутри решения, а не на уровне заявки.
func (l *Ledger) RecordActionResult(ctx context.Context, req *domain.Request, action domain.ActionDecision) error {
	req.Action = &action
	req.Status = domain.StatusActionCompleted

	if err := l.durable.UpdateAction(ctx, req.ID, req.Action, req.Status); err != nil {
		return fmt.Errorf("ledger: record action: %w", err)
	}
	l.refreshFast(ctx, req)
	return nil
}

// RecordError переводит заявку в терминальный статус error.
func (l *Ledger) RecordError(ctx context.Context, req *domain.Request, message string) error {
	req.Error = message
	req.Status = domain.StatusError

	if err := l.durable.UpdateError(ctx, req.ID, message); err != nil {
		return fmt.Errorf("ledger: record error: %w", err)
	}
	l.refreshFast(ctx, req)
	return nil
}

// AppendTrace дописывает запись аудита. Журнал решений append-only.
func (l *Ledger) AppendTrace(ctx context.Context, req *domain.Request, stage, action string, payload map[string]any) error {
	entry := domain.TraceEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Action:    action,
		Payload:   payload,
	}
	req.Traces = append(req.Traces, entry)

	if err := l.durable.InsertTrace(ctx, req.ID, entry); err != nil {
		return fmt.Errorf("ledger: append trace: %w", err)
	}
	l.refreshFast(ctx, req)
	return nil
}

// Get читает заявку: сначала быстрый ярус, при промахе идем в
// долговременный и чиним кэш (read-repair).
func (l *Ledger) Get(ctx context.Context, requestID string) (*domain.Request, error) {
	req, err := l.fast.LoadSnapshot(ctx, requestID)
	if err != nil {
		l.logger.Warn("fast tier read failed, falling through",
			zap.String("request_id", requestID), zap.Error(err))
	}
	if req != nil {
		return req, nil
	}

	req, err = l.durable.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("ledger: get: %w", err)
	}
	l.refreshFast(ctx, req)
	return req, nil
}

// refreshFast обновляет снимок в быстром ярусе. Ошибка не
// распространяется: долговременная запись уже состоялась.
func (l *Ledger) refreshFast(ctx context.Context, req *domain.Request) {
	if err := l.fast.SaveSnapshot(ctx, req); err != nil {
		l.logger.Warn("fast tier write failed",
			zap.String("request_id", req.ID), zap.Error(err))
	}
}
