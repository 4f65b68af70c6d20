package route

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/ledger"
)

// Router выбирает follow-up действие по вердикту классификатора и
// результату экстракции, исполняет его через Dispatcher и фиксирует
// исход в журнале заявок.
type Router struct {
	ledger     *ledger.Ledger
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewRouter(l *ledger.Ledger, d Dispatcher, logger *zap.Logger) *Router {
	return &Router{
		ledger:     l,
		dispatcher: d,
		logger:     logger.Named("router"),
	}
}

// Route определяет и исполняет действие для заявки. Диспатч с исчерпанными
// ретраями не возвращается ошибкой: он записывается как failed ActionDecision,
// а заявка переводится в статус error. Ошибка возврата — только проблема журнала.
func (r *Router) Route(ctx context.Context, req *domain.Request, cls domain.Classification, result domain.ExtractionResult) (domain.ActionDecision, error) {
	actionType, payload, reasoning := decide(cls, result)

	decision := domain.ActionDecision{
		Type:      actionType,
		Payload:   payload,
		Reasoning: reasoning,
		Timestamp: time.Now().UTC(),
	}

	if actionType == domain.ActionLogOnly {
		decision.Outcome = domain.OutcomeCompleted
		decision.Dispatch = &domain.DispatchResult{
			Status:  domain.OutcomeCompleted,
			Message: "Action logged only, no external call required",
		}
	} else {
		endpoint := actionEndpoints[actionType]
		dispatchResult, attempts, err := r.dispatcher.Dispatch(ctx, endpoint, payload)
		if attempts > 0 {
			decision.RetryCount = int(attempts - 1)
		}
		if err != nil {
			decision.Outcome = domain.OutcomeFailed
			decision.Error = err.Error()
			r.logger.Error("action dispatch failed",
				zap.String("request_id", req.ID),
				zap.String("action", string(actionType)),
				zap.String("endpoint", endpoint),
				zap.Int("retries", decision.RetryCount),
				zap.Error(err),
			)
		} else {
			decision.Outcome = dispatchResult.Status
			decision.Dispatch = &dispatchResult
		}
	}

	if err := r.ledger.RecordActionResult(ctx, req, decision); err != nil {
		return decision, fmt.Errorf("route: record action: %w", err)
	}

	tracePayload := map[string]any{
		"determined_action": string(actionType),
		"action_reasoning":  strings.Join(reasoning, "; "),
		"outcome":           string(decision.Outcome),
	}
	if decision.Dispatch != nil {
		tracePayload["dispatch"] = decision.Dispatch
	}
	if err := r.ledger.AppendTrace(ctx, req, "route", "action_routing_details", tracePayload); err != nil {
		return decision, fmt.Errorf("route: append trace: %w", err)
	}

	// Терминальная ошибка диспатча переводит заявку в статус error
	if decision.Outcome == domain.OutcomeFailed {
		if err := r.ledger.RecordError(ctx, req, "dispatch failed: "+decision.Error); err != nil {
			return decision, fmt.Errorf("route: record error: %w", err)
		}
		return decision, nil
	}

	r.logger.Info("action routed",
		zap.String("request_id", req.ID),
		zap.String("action", string(actionType)),
		zap.String("outcome", string(decision.Outcome)),
	)
	return decision, nil
}

// decide — чистая функция решения: при одинаковых входах всегда
// возвращает одно и то же действие. Порядок правил значим.
func decide(cls domain.Classification, result domain.ExtractionResult) (domain.ActionType, map[string]any, []string) {
	reasoning := []string{
		fmt.Sprintf("Input format: %s", cls.Format),
		fmt.Sprintf("Business intent: %s", cls.Intent),
		fmt.Sprintf("Priority: %s", cls.Priority),
	}

	payload := map[string]any{
		"intent":   string(cls.Intent),
		"priority": string(cls.Priority),
	}

	switch cls.Format {
	case domain.FormatMessage:
		return decideMessage(cls, result, payload, reasoning)
	case domain.FormatStructured:
		return decideStructured(cls, result, payload, reasoning)
	case domain.FormatDocument:
		return decideDocument(cls, result, payload, reasoning)
	}

	reasoning = append(reasoning, "No routing rules for mixed format, logging only")
	return domain.ActionLogOnly, payload, reasoning
}

func decideMessage(cls domain.Classification, result domain.ExtractionResult, payload map[string]any, reasoning []string) (domain.ActionType, map[string]any, []string) {
	tone := domain.ToneNeutral
	urgency := domain.UrgencyLow
	handling := domain.HandlingLogAndClose
	if result.Message != nil {
		tone = result.Message.Tone
		urgency = result.Message.Urgency
		handling = result.Message.Handling
	}
	reasoning = append(reasoning,
		fmt.Sprintf("Message tone: %s", tone),
		fmt.Sprintf("Message urgency: %s", urgency),
	)

	if tone == domain.ToneThreatening || tone == domain.ToneEscalation ||
		urgency == domain.UrgencyHigh || cls.Intent == domain.IntentComplaint {
		switch {
		case tone == domain.ToneThreatening || tone == domain.ToneEscalation:
			reasoning = append(reasoning, fmt.Sprintf("Escalation required due to %s tone", strings.ToLower(string(tone))))
		case urgency == domain.UrgencyHigh:
			reasoning = append(reasoning, "Escalation required due to high urgency")
		default:
			reasoning = append(reasoning, "Escalation required due to complaint intent")
		}
		payload["ticket_data"] = map[string]any{
			"type":        "ESCALATION",
			"priority":    string(cls.Priority),
			"subject":     stringField(result.Fields, "subject", "Message Escalation"),
			"description": fmt.Sprintf("Escalated message from %s", stringField(result.Fields, "sender", "Unknown")),
			"tone":        string(tone),
			"urgency":     string(urgency),
		}
		return domain.ActionEscalateIssue, payload, reasoning
	}

	if cls.Intent == domain.IntentQuoteRequest || handling == domain.HandlingEscalate {
		if cls.Intent == domain.IntentQuoteRequest {
			reasoning = append(reasoning, "Ticket created for quote request follow-up")
		} else {
			reasoning = append(reasoning, "Ticket created per extractor handling recommendation")
		}
		payload["ticket_data"] = map[string]any{
			"type":     "FOLLOW_UP",
			"priority": string(cls.Priority),
			"subject":  stringField(result.Fields, "subject", "Message Follow-up"),
			"sender":   stringField(result.Fields, "sender", "Unknown"),
		}
		return domain.ActionCreateTicket, payload, reasoning
	}

	if cls.Intent == domain.IntentFraudRisk {
		reasoning = append(reasoning, "Risk alert created due to fraud risk intent")
		payload["alert_data"] = map[string]any{
			"type":        "FRAUD_RISK_ALERT",
			"priority":    string(domain.PriorityHigh),
			"description": "Potential fraud risk detected in message",
		}
		return domain.ActionRiskAlert, payload, reasoning
	}

	reasoning = append(reasoning, "No escalation conditions met, logging only")
	return domain.ActionLogOnly, payload, reasoning
}

func decideStructured(cls domain.Classification, result domain.ExtractionResult, payload map[string]any, reasoning []string) (domain.ActionType, map[string]any, []string) {
	schema := result.Schema
	if schema == nil {
		reasoning = append(reasoning, "No schema analysis available, logging only")
		return domain.ActionLogOnly, payload, reasoning
	}
	reasoning = append(reasoning, fmt.Sprintf("Identified schema: %s", schema.SchemaName))

	if cls.Intent == domain.IntentFraudRisk {
		reasoning = append(reasoning, "Risk alert created due to fraud risk intent")
		payload["alert_data"] = map[string]any{
			"type":        "FRAUD_RISK_ALERT",
			"priority":    string(domain.PriorityHigh),
			"schema":      schema.SchemaName,
			"description": "Potential fraud risk detected in structured data",
		}
		return domain.ActionRiskAlert, payload, reasoning
	}

	if !schema.Valid || len(schema.Anomalies) > 0 {
		types := make([]string, 0, len(schema.Anomalies))
		for _, anomaly := range schema.Anomalies {
			types = append(types, anomaly.Type)
		}
		if !schema.Valid {
			reasoning = append(reasoning, "Risk alert created due to schema validation failure")
		}
		if len(types) > 0 {
			reasoning = append(reasoning, "Risk alert created due to detected anomalies: "+strings.Join(types, ", "))
		}
		payload["alert_data"] = map[string]any{
			"type":          "DATA_ANOMALY",
			"priority":      string(cls.Priority),
			"schema":        schema.SchemaName,
			"schema_valid":  schema.Valid,
			"anomaly_types": types,
			"description":   fmt.Sprintf("Detected %d anomalies in structured data", len(schema.Anomalies)),
		}
		return domain.ActionRiskAlert, payload, reasoning
	}

	reasoning = append(reasoning, "Schema valid, no anomalies, logging only")
	return domain.ActionLogOnly, payload, reasoning
}

func decideDocument(cls domain.Classification, result domain.ExtractionResult, payload map[string]any, reasoning []string) (domain.ActionType, map[string]any, []string) {
	doc := result.Document
	if doc == nil {
		reasoning = append(reasoning, "No document analysis available, logging only")
		return domain.ActionLogOnly, payload, reasoning
	}
	reasoning = append(reasoning, fmt.Sprintf("Document type: %s", doc.Subtype))

	// Прецедентность значима: комплаенс выше high-value, high-value выше
	// остальных флагов
	var complianceFlags, highValueFlags []domain.Flag
	for _, flag := range doc.Flags {
		switch {
		case strings.Contains(strings.ToLower(flag.Type), "compliance"):
			complianceFlags = append(complianceFlags, flag)
		case flag.Type == domain.FlagHighValueInvoice:
			highValueFlags = append(highValueFlags, flag)
		}
	}

	if len(complianceFlags) > 0 {
		reasoning = append(reasoning, "Compliance flagging required due to detected compliance references")
		payload["compliance_data"] = map[string]any{
			"type":        "COMPLIANCE_FLAG",
			"priority":    string(cls.Priority),
			"flags":       complianceFlags,
			"description": fmt.Sprintf("Detected %d compliance flags in document", len(complianceFlags)),
		}
		return domain.ActionFlagCompliance, payload, reasoning
	}

	if len(highValueFlags) > 0 {
		reasoning = append(reasoning, "Ticket created for high-value invoice that requires approval")
		payload["ticket_data"] = map[string]any{
			"type":        "HIGH_VALUE_INVOICE",
			"priority":    string(cls.Priority),
			"flags":       highValueFlags,
			"description": "High-value invoice requires approval",
		}
		return domain.ActionCreateTicket, payload, reasoning
	}

	if result.AlertNeeded && len(doc.Flags) > 0 {
		types := make([]string, 0, len(doc.Flags))
		for _, flag := range doc.Flags {
			types = append(types, flag.Type)
		}
		reasoning = append(reasoning, "Risk alert created due to detected flags: "+strings.Join(types, ", "))
		payload["alert_data"] = map[string]any{
			"type":        "DOCUMENT_FLAGS",
			"priority":    string(cls.Priority),
			"flags":       doc.Flags,
			"description": fmt.Sprintf("Detected %d flags in document", len(doc.Flags)),
		}
		return domain.ActionRiskAlert, payload, reasoning
	}

	reasoning = append(reasoning, "No actionable flags, logging only")
	return domain.ActionLogOnly, payload, reasoning
}

func stringField(fields map[string]any, key, fallback string) string {
	if fields != nil {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
