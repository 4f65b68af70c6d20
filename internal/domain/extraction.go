package domain

// Tone — тональность сообщения (для формата MESSAGE).
type Tone string

const (
	ToneThreatening Tone = "THREATENING"
	ToneEscalation  Tone = "ESCALATION"
	ToneAngry       Tone = "ANGRY"
	TonePolite      Tone = "POLITE"
	ToneNeutral     Tone = "NEUTRAL"
)

// Urgency — срочность, извлеченная из текста сообщения.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Handling — рекомендация экстрактора по дальнейшей обработке.
type Handling string

const (
	HandlingEscalate    Handling = "ESCALATE"
	HandlingLogAndClose Handling = "LOG_AND_CLOSE"
)

// MessageAnalysis — аналитический блок экстрактора сообщений.
type MessageAnalysis struct {
	Tone              Tone     `json:"tone"`
	Urgency           Urgency  `json:"urgency"`
	Handling          Handling `json:"recommended_handling"`
	ToneIndicators    []string `json:"tone_indicators,omitempty"`
	UrgencyIndicators []string `json:"urgency_indicators,omitempty"`
}

// Anomaly — отклонение, найденное в структурированных данных.
type Anomaly struct {
	Type        string         `json:"type"` // schema_mismatch, missing_critical_fields, ...
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// SchemaAnalysis — аналитический блок экстрактора структурированных данных.
type SchemaAnalysis struct {
	SchemaName  string    `json:"schema_name"`
	Confidence  float64   `json:"confidence"`
	Valid       bool      `json:"valid"`
	Missing     []string  `json:"missing_fields,omitempty"`
	TypeErrors  []string  `json:"type_errors,omitempty"`
	Anomalies   []Anomaly `json:"anomalies,omitempty"`
}

// Severity флага документа.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Известные типы флагов документов.
const (
	FlagHighValueInvoice       = "high_value_invoice"
	FlagMissingCriticalFields  = "missing_critical_fields"
	FlagExpensiveLineItems     = "expensive_line_items"
	FlagComplianceReferences   = "compliance_references"
	FlagHighPriorityCompliance = "high_priority_compliance"
	FlagMissingPolicyMetadata  = "missing_policy_metadata"
	FlagHighMonetaryAmounts    = "high_monetary_amounts"
	FlagSensitiveInfo          = "potential_sensitive_info"
)

// Flag — важное условие, отмеченное в документе.
type Flag struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// DocumentSubtype — подтип постраничного документа.
type DocumentSubtype string

const (
	DocInvoice DocumentSubtype = "INVOICE"
	DocPolicy  DocumentSubtype = "POLICY"
	DocGeneral DocumentSubtype = "GENERAL"
)

// DocumentAnalysis — аналитический блок экстрактора документов.
type DocumentAnalysis struct {
	Subtype  DocumentSubtype `json:"document_type"`
	Metadata map[string]any  `json:"metadata,omitempty"` // page_count и пр.
	Flags    []Flag          `json:"flags,omitempty"`
}

// ExtractionResult — контракт экстракторов (§ extractors).
// Заполнен максимум один из Message/Schema/Document — по формату входа.
type ExtractionResult struct {
	Extractor string         `json:"extractor"`
	Fields    map[string]any `json:"structured_fields,omitempty"`

	Message  *MessageAnalysis  `json:"message_analysis,omitempty"`
	Schema   *SchemaAnalysis   `json:"schema_analysis,omitempty"`
	Document *DocumentAnalysis `json:"document_analysis,omitempty"`

	AlertNeeded bool `json:"alert_needed"`
}
