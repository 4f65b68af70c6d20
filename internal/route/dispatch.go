package route

import (
	"context"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// Endpoint-классы внешних систем. CREATE_TICKET и ESCALATE_ISSUE уходят
// в одну систему тикетов, но с разными payload.
const (
	EndpointTickets    = "crm.tickets"
	EndpointCompliance = "compliance.logs"
	EndpointRiskAlerts = "risk.alerts"
)

// actionEndpoints — фиксированный маппинг действие -> endpoint-класс.
// LOG_ONLY не требует внешнего вызова.
var actionEndpoints = map[domain.ActionType]string{
	domain.ActionCreateTicket:   EndpointTickets,
	domain.ActionEscalateIssue:  EndpointTickets,
	domain.ActionFlagCompliance: EndpointCompliance,
	domain.ActionRiskAlert:      EndpointRiskAlerts,
}

// Connector — боундари внешних систем действий (тикеты, комплаенс, риски).
type Connector interface {
	Call(ctx context.Context, endpoint string, payload map[string]any) (domain.DispatchResult, error)
}

// MockSystemsConnector имитирует внешние системы: задержку сети и
// ответ с корреляционным идентификатором.
type MockSystemsConnector struct{}

func (c *MockSystemsConnector) Call(ctx context.Context, endpoint string, _ map[string]any) (domain.DispatchResult, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return domain.DispatchResult{}, ctx.Err()
	}

	correlationID := uuid.NewString()

	switch endpoint {
	case EndpointTickets:
		return domain.DispatchResult{
			Status:        domain.OutcomeCompleted,
			CorrelationID: correlationID,
			Message:       fmt.Sprintf("Ticket created successfully with ID: %s", correlationID),
		}, nil
	case EndpointCompliance:
		return domain.DispatchResult{
			Status:        domain.OutcomeCompleted,
			CorrelationID: correlationID,
			Message:       fmt.Sprintf("Compliance issue logged successfully with ID: %s", correlationID),
		}, nil
	case EndpointRiskAlerts:
		return domain.DispatchResult{
			Status:        domain.OutcomeCompleted,
			CorrelationID: correlationID,
			Message:       fmt.Sprintf("Risk alert created successfully with ID: %s", correlationID),
		}, nil
	default:
		return domain.DispatchResult{}, fmt.Errorf("route: endpoint %s not supported by connector", endpoint)
	}
}
