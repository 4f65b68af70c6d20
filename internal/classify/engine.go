package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/extract"
	"github.com/xela07ax/docflow-gateway/internal/ledger"
)

// Config — настройки движка классификации.
type Config struct {
	// LargeValueThreshold — порог "крупной суммы", выше которого
	// приоритет форсируется в HIGH.
	LargeValueThreshold float64
}

func DefaultConfig() Config {
	return Config{LargeValueThreshold: 10000}
}

// Engine присваивает входу формат, намерение, уверенность и приоритет.
// Классификация детерминирована: никакого ML, только фиксированные
// таблицы и подсчет совпадений.
type Engine struct {
	ledger *ledger.Ledger
	cfg    Config
	logger *zap.Logger
}

func NewEngine(l *ledger.Ledger, cfg Config, logger *zap.Logger) *Engine {
	if cfg.LargeValueThreshold <= 0 {
		cfg.LargeValueThreshold = 10000
	}
	return &Engine{
		ledger: l,
		cfg:    cfg,
		logger: logger.Named("classify"),
	}
}

// Classify определяет формат и намерение входа заявки, записывает вердикт
// в журнал и оставляет трассу с полным обоснованием решения.
// Для корректного входа никогда не возвращает ошибку классификации:
// нераспознанный формат уходит в MIXED, нулевой счет намерений в GENERAL.
func (e *Engine) Classify(ctx context.Context, req *domain.Request) (domain.Classification, error) {
	if req.Input == nil {
		return domain.Classification{}, fmt.Errorf("classify: request %s has no input", req.ID)
	}
	content := *req.Input

	format := detectFormat(content, req.InputSource)
	text := extract.AnalyzableText(content)

	intent, confidence, matched := e.detectIntent(content, format, text)
	priority, reasoning := e.determinePriority(&intent, content, format, text)

	cls := domain.Classification{
		Format:     format,
		Intent:     intent,
		Confidence: confidence,
		Priority:   priority,
	}

	if err := e.ledger.RecordClassification(ctx, req, cls); err != nil {
		return cls, err
	}
	if err := e.ledger.AppendTrace(ctx, req, "classify", "classification_details", map[string]any{
		"format_detection": map[string]any{
			"detected_format": string(format),
			"input_source":    string(req.InputSource),
		},
		"intent_detection": map[string]any{
			"detected_intent":  string(intent),
			"confidence":       confidence,
			"matched_keywords": matched,
		},
		"priority_determination": map[string]any{
			"assigned_priority": string(priority),
			"reasoning":         reasoning,
		},
	}); err != nil {
		return cls, err
	}

	e.logger.Info("input classified",
		zap.String("request_id", req.ID),
		zap.String("format", string(format)),
		zap.String("intent", string(intent)),
		zap.Float64("confidence", confidence),
		zap.String("priority", string(priority)),
	)
	return cls, nil
}

// detectFormat выбирает формат по подсказке источника, иначе по форме
// содержимого. Никогда не ошибается: неизвестное уходит в MIXED.
func detectFormat(content domain.Content, hint domain.SourceHint) domain.Format {
	switch hint {
	case domain.SourceStructured:
		return domain.FormatStructured
	case domain.SourceMessage:
		return domain.FormatMessage
	case domain.SourceFile:
		// Файл: конкретный формат определяем по виду содержимого
		switch content.Kind {
		case domain.ContentBinary:
			return domain.FormatDocument
		case domain.ContentStructured:
			return domain.FormatStructured
		case domain.ContentText:
			if looksStructured(content.Text) {
				return domain.FormatStructured
			}
			if looksLikeMessage(content.Text) {
				return domain.FormatMessage
			}
			return domain.FormatDocument
		}
		return domain.FormatMixed
	}

	switch content.Kind {
	case domain.ContentStructured:
		return domain.FormatStructured
	case domain.ContentBinary:
		return domain.FormatDocument
	case domain.ContentText:
		if looksStructured(content.Text) {
			return domain.FormatStructured
		}
		if looksLikeMessage(content.Text) {
			return domain.FormatMessage
		}
	}
	return domain.FormatMixed
}

func looksStructured(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return false
	}
	return json.Valid([]byte(trimmed))
}

func looksLikeMessage(text string) bool {
	count := len(messageHeaderRe.FindAllString(text, -1))
	for _, indicator := range messageIndicators {
		if strings.Contains(text, indicator) {
			count++
		}
	}
	if count >= 2 {
		return true
	}
	return emailAddressRe.MatchString(text)
}

// detectIntent: быстрый путь по явному полю типа для структурных данных,
// иначе подсчет совпадений по лексиконам.
func (e *Engine) detectIntent(content domain.Content, format domain.Format, text string) (domain.Intent, float64, []string) {
	if format == domain.FormatStructured && content.Kind == domain.ContentStructured {
		if intent, ok := intentFromTypeField(content.Structured); ok {
			return intent, 1.0, nil
		}
		if factors, ok := content.Structured["risk_factors"].([]any); ok && len(factors) > 0 {
			return domain.IntentFraudRisk, 1.0, nil
		}
	}

	scores := make(map[domain.Intent]int, len(intentRegexps))
	total := 0
	for intent, patterns := range intentRegexps {
		score := 0
		for _, re := range patterns {
			score += len(re.FindAllString(text, -1))
		}
		scores[intent] = score
		total += score
	}

	if total == 0 {
		return domain.IntentGeneral, 0.5, nil
	}

	// Детерминированный выбор победителя при равном счете
	winner := domain.IntentGeneral
	best := -1
	for _, intent := range []domain.Intent{
		domain.IntentQuoteRequest, domain.IntentComplaint, domain.IntentInvoice,
		domain.IntentRegulatory, domain.IntentFraudRisk,
	} {
		if scores[intent] > best {
			best = scores[intent]
			winner = intent
		}
	}

	confidence := round2(float64(best) / float64(total))
	return winner, confidence, matchedKeywords(text, winner)
}

func intentFromTypeField(m map[string]any) (domain.Intent, bool) {
	var typeValue string
	for _, field := range []string{"alert_type", "type", "document_type", "category"} {
		if v, ok := m[field]; ok {
			typeValue = strings.ToLower(fmt.Sprintf("%v", v))
			break
		}
	}
	if typeValue == "" {
		return "", false
	}
	for _, group := range typeFieldIntents {
		for _, term := range group.terms {
			if strings.Contains(typeValue, term) {
				return group.intent, true
			}
		}
	}
	return "", false
}

func matchedKeywords(text string, intent domain.Intent) []string {
	keywords := intentLexicons[intent]
	patterns := intentRegexps[intent]
	var matched []string
	for i, re := range patterns {
		if re.MatchString(text) {
			matched = append(matched, keywords[i])
		}
	}
	return matched
}

// determinePriority строит приоритет от базовой карты намерений и цепочки
// правил эскалации. Правило (a) по явному полю риска может и понизить
// базу; остальные правила только повышают. Каждое сработавшее правило
// оставляет строку в reasoning.
func (e *Engine) determinePriority(intent *domain.Intent, content domain.Content, format domain.Format, text string) (domain.Priority, []string) {
	basePriorities := map[domain.Intent]domain.Priority{
		domain.IntentFraudRisk:    domain.PriorityHigh,
		domain.IntentComplaint:    domain.PriorityMedium,
		domain.IntentRegulatory:   domain.PriorityMedium,
		domain.IntentInvoice:      domain.PriorityLow,
		domain.IntentQuoteRequest: domain.PriorityLow,
		domain.IntentGeneral:      domain.PriorityLow,
	}

	priority := basePriorities[*intent]
	reasoning := []string{fmt.Sprintf("Base priority %s for %s intent", priority, *intent)}
	lower := strings.ToLower(text)

	if content.Kind == domain.ContentStructured {
		m := content.Structured

		// (a) Явное поле риска перекрывает базу в обе стороны
		if level, ok := explicitRiskLevel(m); ok {
			if mapped, ok := riskLevelPriority(level); ok {
				priority = mapped
				reasoning = append(reasoning, fmt.Sprintf("Explicit risk level %q maps to %s", level, mapped))
			}
		}

		// (b) Крупная сумма форсирует HIGH
		if amount, ok := numericAmount(m); ok && amount > e.cfg.LargeValueThreshold {
			priority = domain.PriorityHigh
			reasoning = append(reasoning, fmt.Sprintf("Amount %.2f exceeds large-value threshold", amount))
		}

		// (c) Рекомендованное действие block/reject/escalate
		if action, ok := recommendedAction(m); ok {
			priority = domain.PriorityHigh
			reasoning = append(reasoning, fmt.Sprintf("Recommended action %q forces high priority", action))
		}
	}

	// (d) Словарь срочности поднимает на ступень
	if urgent := containedKeywords(lower, urgentKeywords); len(urgent) > 0 {
		priority = priority.Bump()
		reasoning = append(reasoning, "Contains urgency indicators: "+strings.Join(urgent, ", "))
	}

	// (e) Словарь мошенничества форсирует HIGH
	if fraud := containedKeywords(lower, fraudKeywords); len(fraud) > 0 {
		priority = domain.PriorityHigh
		reasoning = append(reasoning, "Contains fraud/security indicators: "+strings.Join(fraud, ", "))
	}

	// (f) GENERAL-документ с инвойсной лексикой пере-тегируется в INVOICE
	if format == domain.FormatDocument && *intent == domain.IntentGeneral {
		count := 0
		for _, indicator := range invoiceIndicators {
			if strings.Contains(lower, indicator) {
				count++
			}
		}
		if count >= 3 {
			*intent = domain.IntentInvoice
			reasoning = append(reasoning, fmt.Sprintf("Re-tagged as INVOICE (%d invoice indicators)", count))
		}
	}

	// (g) Крупная сумма в инвойсоподобном тексте
	if *intent == domain.IntentInvoice || (format == domain.FormatDocument && strings.Contains(lower, "invoice")) {
		if maxAmount, ok := largestCurrencyAmount(text); ok && maxAmount > e.cfg.LargeValueThreshold {
			priority = domain.PriorityHigh
			reasoning = append(reasoning, fmt.Sprintf("High-value invoice detected: %.2f", maxAmount))
		}
	}

	return priority, reasoning
}

// explicitRiskLevel ищет risk_level/priority/severity на верхнем уровне,
// затем те же поля внутри details.
func explicitRiskLevel(m map[string]any) (string, bool) {
	fields := []string{"risk_level", "priority", "severity"}
	for _, field := range fields {
		if v, ok := m[field]; ok {
			return strings.ToLower(fmt.Sprintf("%v", v)), true
		}
	}
	if details, ok := m["details"].(map[string]any); ok {
		for _, field := range fields {
			if v, ok := details[field]; ok {
				return strings.ToLower(fmt.Sprintf("%v", v)), true
			}
		}
	}
	return "", false
}

func riskLevelPriority(level string) (domain.Priority, bool) {
	switch level {
	case "high", "critical", "severe":
		return domain.PriorityHigh, true
	case "medium", "moderate":
		return domain.PriorityMedium, true
	case "low", "minor":
		return domain.PriorityLow, true
	}
	return "", false
}

func numericAmount(m map[string]any) (float64, bool) {
	if amount, ok := asFloat(m["amount"]); ok {
		return amount, true
	}
	if details, ok := m["details"].(map[string]any); ok {
		return asFloat(details["amount"])
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func recommendedAction(m map[string]any) (string, bool) {
	var action string
	if v, ok := m["recommended_action"]; ok {
		action = strings.ToLower(fmt.Sprintf("%v", v))
	} else if v, ok := m["action"]; ok {
		action = strings.ToLower(fmt.Sprintf("%v", v))
	}
	switch action {
	case "block", "reject", "escalate":
		return action, true
	}
	return "", false
}

func containedKeywords(lower string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// largestCurrencyAmount достает максимальную денежную сумму из текста.
func largestCurrencyAmount(text string) (float64, bool) {
	var max float64
	found := false
	for _, re := range currencyPatterns {
		for _, raw := range re.FindAllString(text, -1) {
			cleaned := nonNumericRe.ReplaceAllString(raw, "")
			// После чистки может остаться лишняя точка (Total: 1.000.00)
			if parts := strings.Split(cleaned, "."); len(parts) > 2 {
				cleaned = parts[0] + "." + parts[1]
			}
			value, err := strconv.ParseFloat(cleaned, 64)
			if err != nil {
				continue
			}
			if !found || value > max {
				max = value
				found = true
			}
		}
	}
	return max, found
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
