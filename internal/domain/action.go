package domain

import "time"

// ActionType — закрытый набор follow-up действий.
type ActionType string

const (
	ActionCreateTicket   ActionType = "CREATE_TICKET"
	ActionEscalateIssue  ActionType = "ESCALATE_ISSUE"
	ActionFlagCompliance ActionType = "FLAG_COMPLIANCE"
	ActionRiskAlert      ActionType = "RISK_ALERT"
	ActionLogOnly        ActionType = "LOG_ONLY"
)

// Outcome диспатча.
type ActionOutcome string

const (
	OutcomeCompleted ActionOutcome = "completed"
	OutcomeFailed    ActionOutcome = "failed"
)

// DispatchResult — ответ боундари внешних систем (ticketing, compliance, risk).
type DispatchResult struct {
	Status        ActionOutcome `json:"status"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// ActionDecision — выход роутера: какое действие и чем закончился диспатч.
// Немутабелен после возврата из Retry Executor.
type ActionDecision struct {
	Type    ActionType     `json:"action_type"`
	Payload map[string]any `json:"payload,omitempty"`

	Outcome    ActionOutcome `json:"outcome"`
	RetryCount int           `json:"retry_count"`

	// Reasoning — человекочитаемая цепочка: какое правило сработало.
	Reasoning []string `json:"reasoning,omitempty"`

	Dispatch  *DispatchResult `json:"dispatch,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
