package classify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/ledger"
)

// memStores — минимальный журнал в памяти для проверки side effects.
type memStores struct {
	requests map[string]*domain.Request
	traces   map[string][]domain.TraceEntry
}

func newMemStores() *memStores {
	return &memStores{
		requests: map[string]*domain.Request{},
		traces:   map[string][]domain.TraceEntry{},
	}
}

func (s *memStores) SaveSnapshot(context.Context, *domain.Request) error { return nil }
func (s *memStores) LoadSnapshot(context.Context, string) (*domain.Request, error) {
	return nil, nil
}

func (s *memStores) InsertRequest(_ context.Context, req *domain.Request) error {
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *memStores) UpdateInput(_ context.Context, id string, input *domain.Content, source domain.SourceHint, status domain.RequestStatus) error {
	r := s.requests[id]
	r.Input, r.InputSource, r.Status = input, source, status
	return nil
}

func (s *memStores) UpdateClassification(_ context.Context, id string, cls *domain.Classification, status domain.RequestStatus) error {
	r := s.requests[id]
	r.Classification, r.Status = cls, status
	return nil
}

func (s *memStores) UpdateProcessing(_ context.Context, id string, result *domain.ExtractionResult, status domain.RequestStatus) error {
	r := s.requests[id]
	r.Processing, r.Status = result, status
	return nil
}

func (s *memStores) UpdateAction(_ context.Context, id string, action *domain.ActionDecision, status domain.RequestStatus) error {
	r := s.requests[id]
	r.Action, r.Status = action, status
	return nil
}

func (s *memStores) UpdateError(_ context.Context, id, message string) error {
	r := s.requests[id]
	r.Error, r.Status = message, domain.StatusError
	return nil
}

func (s *memStores) InsertTrace(_ context.Context, id string, entry domain.TraceEntry) error {
	s.traces[id] = append(s.traces[id], entry)
	return nil
}

func (s *memStores) GetRequest(_ context.Context, id string) (*domain.Request, error) {
	return s.requests[id], nil
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger, *memStores) {
	t.Helper()
	stores := newMemStores()
	l := ledger.New(stores, stores, zap.NewNop())
	return NewEngine(l, DefaultConfig(), zap.NewNop()), l, stores
}

func newRequest(content domain.Content, source domain.SourceHint) *domain.Request {
	return &domain.Request{
		ID:          "req-test",
		CreatedAt:   time.Now().UTC(),
		Status:      domain.StatusInputReceived,
		Input:       &content,
		InputSource: source,
	}
}

func classifyContent(t *testing.T, content domain.Content, source domain.SourceHint) domain.Classification {
	t.Helper()
	engine, _, stores := newTestEngine(t)
	req := newRequest(content, source)
	stores.requests[req.ID] = req

	cls, err := engine.Classify(context.Background(), req)
	require.NoError(t, err)
	return cls
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content domain.Content
		hint    domain.SourceHint
		want    domain.Format
	}{
		{"structured hint wins", domain.TextContent(`{"a":1}`), domain.SourceStructured, domain.FormatStructured},
		{"message hint wins", domain.TextContent("hello"), domain.SourceMessage, domain.FormatMessage},
		{"file hint with binary", domain.BinaryContent([]byte{1}, "x.pdf"), domain.SourceFile, domain.FormatDocument},
		{"file hint with json text", domain.TextContent(`{"a":1}`), domain.SourceFile, domain.FormatStructured},
		{"file hint with message text", domain.TextContent("From: a@b.com\nSubject: hi\n\nbody"), domain.SourceFile, domain.FormatMessage},
		{"file hint with plain text", domain.TextContent("quarterly report body"), domain.SourceFile, domain.FormatDocument},
		{"file hint invoice labels are not headers", domain.TextContent("Invoice No: INV-1\nInvoice Date: 01/02/2026\nBill To: Acme\nTotal: $900.00"), domain.SourceFile, domain.FormatDocument},
		{"no hint structured payload", domain.StructuredContent(map[string]any{"a": 1}), domain.SourceUnspecified, domain.FormatStructured},
		{"no hint binary", domain.BinaryContent([]byte{1}, ""), domain.SourceUnspecified, domain.FormatDocument},
		{"no hint json string", domain.TextContent(`{"event_type":"x"}`), domain.SourceUnspecified, domain.FormatStructured},
		{"no hint two header indicators", domain.TextContent("Subject: hi\nDear team, thanks"), domain.SourceUnspecified, domain.FormatMessage},
		{"no hint embedded address", domain.TextContent("contact bob@corp.example for details"), domain.SourceUnspecified, domain.FormatMessage},
		{"no hint mid-line labels stay mixed", domain.TextContent("Ship To: warehouse 7\nPickup Date: tomorrow"), domain.SourceUnspecified, domain.FormatMixed},
		{"no hint plain prose", domain.TextContent("nothing special here"), domain.SourceUnspecified, domain.FormatMixed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, detectFormat(tc.content, tc.hint))
		})
	}
}

func TestFastPathTypeField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload map[string]any
		want    domain.Intent
	}{
		{"alert_type risk", map[string]any{"alert_type": "transaction_risk"}, domain.IntentFraudRisk},
		{"type invoice", map[string]any{"type": "invoice_issued"}, domain.IntentInvoice},
		{"document_type complaint", map[string]any{"document_type": "customer_complaint"}, domain.IntentComplaint},
		{"category pricing", map[string]any{"category": "pricing_inquiry"}, domain.IntentQuoteRequest},
		{"type compliance", map[string]any{"type": "compliance_report"}, domain.IntentRegulatory},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cls := classifyContent(t, domain.StructuredContent(tc.payload), domain.SourceStructured)
			assert.Equal(t, tc.want, cls.Intent)
			assert.Equal(t, 1.0, cls.Confidence)
		})
	}
}

func TestRiskFactorsForceFraudRisk(t *testing.T) {
	t.Parallel()

	cls := classifyContent(t, domain.StructuredContent(map[string]any{
		"payload":      map[string]any{"x": 1},
		"risk_factors": []any{"velocity", "unusual_location"},
	}), domain.SourceStructured)

	assert.Equal(t, domain.IntentFraudRisk, cls.Intent)
	assert.Equal(t, 1.0, cls.Confidence)
	assert.Equal(t, domain.PriorityHigh, cls.Priority)
}

func TestKeywordScoring(t *testing.T) {
	t.Parallel()

	t.Run("complaint keywords win", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.TextContent(
			"Subject: Complaint\n\nI am not satisfied with the poor service, I want a refund."),
			domain.SourceMessage)
		assert.Equal(t, domain.IntentComplaint, cls.Intent)
		assert.Greater(t, cls.Confidence, 0.0)
		assert.LessOrEqual(t, cls.Confidence, 1.0)
	})

	t.Run("zero matches falls back to general", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.TextContent("zebra giraffe mountain"), domain.SourceMessage)
		assert.Equal(t, domain.IntentGeneral, cls.Intent)
		assert.Equal(t, 0.5, cls.Confidence)
		assert.Equal(t, domain.PriorityLow, cls.Priority)
	})
}

func TestPriorityRules(t *testing.T) {
	t.Parallel()

	t.Run("base map", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.TextContent(
			"Subject: Feedback\n\nI am dissatisfied and disappointed with the bad quality."),
			domain.SourceMessage)
		assert.Equal(t, domain.IntentComplaint, cls.Intent)
		assert.Equal(t, domain.PriorityMedium, cls.Priority)
	})

	t.Run("explicit risk level can lower base", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.StructuredContent(map[string]any{
			"alert_type": "transaction_risk",
			"risk_level": "low",
		}), domain.SourceStructured)
		assert.Equal(t, domain.IntentFraudRisk, cls.Intent)
		// Явное поле риска понижает базовый HIGH
		assert.Equal(t, domain.PriorityLow, cls.Priority)
	})

	t.Run("amount threshold forces high", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.StructuredContent(map[string]any{
			"id": "tx-9", "amount": float64(15000), "currency": "USD", "status": "pending",
		}), domain.SourceStructured)
		assert.Equal(t, domain.PriorityHigh, cls.Priority)
	})

	t.Run("recommended action forces high", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.StructuredContent(map[string]any{
			"type": "user_ticket", "recommended_action": "escalate",
		}), domain.SourceStructured)
		assert.Equal(t, domain.IntentComplaint, cls.Intent)
		assert.Equal(t, domain.PriorityHigh, cls.Priority)
	})

	t.Run("urgency vocabulary bumps one step", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.TextContent(
			"Subject: Complaint\n\nThis urgent issue with the damaged unit makes me dissatisfied."),
			domain.SourceMessage)
		assert.Equal(t, domain.IntentComplaint, cls.Intent)
		assert.Equal(t, domain.PriorityHigh, cls.Priority)
	})

	t.Run("fraud vocabulary forces high", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.TextContent(
			"Subject: Notice\n\nWe detected unauthorized access to your account."),
			domain.SourceMessage)
		assert.Equal(t, domain.PriorityHigh, cls.Priority)
	})

	t.Run("nested risk level under details", func(t *testing.T) {
		t.Parallel()
		cls := classifyContent(t, domain.StructuredContent(map[string]any{
			"type":    "webhook_event",
			"details": map[string]any{"severity": "critical"},
		}), domain.SourceStructured)
		assert.Equal(t, domain.PriorityHigh, cls.Priority)
	})
}

func TestDocumentInvoiceRetag(t *testing.T) {
	t.Parallel()

	// Документ с инвойсной лексикой, но начальный скоринг дает не-INVOICE:
	// правило (f) пере-тегирует, правило (g) ловит крупную сумму
	cls := classifyContent(t, domain.TextContent(
		"Quarterly statement\nbill summary\nreceipt attached\npayment expected\nTotal: $15,250.00"),
		domain.SourceFile)

	assert.Equal(t, domain.FormatDocument, cls.Format)
	assert.Equal(t, domain.PriorityHigh, cls.Priority)
}

func TestHighValueInvoiceDocument(t *testing.T) {
	t.Parallel()

	cls := classifyContent(t, domain.TextContent(
		"Invoice No: INV-9\nInvoice Date: 01/02/2026\nBill To: Acme\nSubtotal: $11,000.00\nTotal: $11,900.00"),
		domain.SourceFile)

	assert.Equal(t, domain.FormatDocument, cls.Format)
	assert.Equal(t, domain.IntentInvoice, cls.Intent)
	assert.Equal(t, domain.PriorityHigh, cls.Priority)
}

func TestClassifySideEffects(t *testing.T) {
	t.Parallel()
	engine, _, stores := newTestEngine(t)

	content := domain.TextContent("Subject: Complaint\n\nI am not satisfied, refund please.")
	req := newRequest(content, domain.SourceMessage)
	stores.requests[req.ID] = req

	cls, err := engine.Classify(context.Background(), req)
	require.NoError(t, err)

	// Вердикт записан в журнал
	stored := stores.requests[req.ID]
	require.NotNil(t, stored.Classification)
	assert.Equal(t, cls, *stored.Classification)
	assert.Equal(t, domain.StatusClassified, stored.Status)

	// Трасса содержит совпавшие ключевые слова и цепочку обоснования
	traces := stores.traces[req.ID]
	require.Len(t, traces, 1)
	assert.Equal(t, "classify", traces[0].Stage)
	assert.Equal(t, "classification_details", traces[0].Action)

	intentDetails := traces[0].Payload["intent_detection"].(map[string]any)
	assert.NotEmpty(t, intentDetails["matched_keywords"])
	priorityDetails := traces[0].Payload["priority_determination"].(map[string]any)
	assert.NotEmpty(t, priorityDetails["reasoning"])
}

func TestClassifyWithoutInput(t *testing.T) {
	t.Parallel()
	engine, _, _ := newTestEngine(t)

	_, err := engine.Classify(context.Background(), &domain.Request{ID: "empty"})
	require.Error(t, err)
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	t.Parallel()

	inputs := []domain.Content{
		domain.TextContent("invoice payment due total tax bill"),
		domain.TextContent(""),
		domain.StructuredContent(map[string]any{"x": "y"}),
		domain.TextContent("fraud suspicious unauthorized breach"),
	}
	for _, content := range inputs {
		cls := classifyContent(t, content, domain.SourceUnspecified)
		assert.GreaterOrEqual(t, cls.Confidence, 0.0)
		assert.LessOrEqual(t, cls.Confidence, 1.0)
		assert.Contains(t, []domain.Priority{
			domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh,
		}, cls.Priority)
	}
}
