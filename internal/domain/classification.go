package domain

// Format — закрытое перечисление форматов входа.
type Format string

const (
	FormatMessage    Format = "MESSAGE"    // Письмо/сообщение с заголовками
	FormatStructured Format = "STRUCTURED" // JSON/webhook payload
	FormatDocument   Format = "DOCUMENT"   // Бинарный/постраничный документ
	FormatMixed      Format = "MIXED"      // Не удалось определить
)

// Intent — бизнес-намерение входа.
type Intent string

const (
	IntentQuoteRequest Intent = "QUOTE_REQUEST"
	IntentComplaint    Intent = "COMPLAINT"
	IntentInvoice      Intent = "INVOICE"
	IntentRegulatory   Intent = "REGULATORY"
	IntentFraudRisk    Intent = "FRAUD_RISK"
	IntentGeneral      Intent = "GENERAL"
)

// Priority — уровень срочности заявки.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// rank для монотонного повышения приоритета.
var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
}

// Max возвращает более высокий из двух приоритетов.
func (p Priority) Max(other Priority) Priority {
	if priorityRank[other] > priorityRank[p] {
		return other
	}
	return p
}

// Bump поднимает приоритет на одну ступень (LOW->MEDIUM, MEDIUM->HIGH).
func (p Priority) Bump() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	}
	return p
}

// Classification — результат классификатора. Создается один раз на заявку,
// после записи в Ledger немутабелен.
type Classification struct {
	Format     Format   `json:"format"`
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"` // 0.0..1.0, никогда не ноль-без-значения
	Priority   Priority `json:"priority"`
}
