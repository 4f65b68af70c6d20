package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// valueKind — допустимые типы полей схемы поверх декодированного JSON.
type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindObject
	kindList
	kindStringOrNumber
	kindStringOrObject
)

func (k valueKind) matches(v any) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case kindObject:
		_, ok := v.(map[string]any)
		return ok
	case kindList:
		_, ok := v.([]any)
		return ok
	case kindStringOrNumber:
		return kindString.matches(v) || kindNumber.matches(v)
	case kindStringOrObject:
		return kindString.matches(v) || kindObject.matches(v)
	}
	return false
}

type schemaTemplate struct {
	required []string
	types    map[string]valueKind
}

// Шаблоны известных структур webhook-трафика. Порядок фиксирован для
// детерминированного выбора при равном счете совпадений.
var schemaOrder = []string{"webhook", "user", "transaction", "order", "fraud_alert", "invoice"}

var schemaTemplates = map[string]schemaTemplate{
	"webhook": {
		required: []string{"event_type", "timestamp", "data"},
		types: map[string]valueKind{
			"event_type": kindString,
			"timestamp":  kindString,
			"data":       kindObject,
		},
	},
	"user": {
		required: []string{"id", "name", "email"},
		types: map[string]valueKind{
			"id":    kindStringOrNumber,
			"name":  kindString,
			"email": kindString,
		},
	},
	"transaction": {
		required: []string{"id", "amount", "currency", "status"},
		types: map[string]valueKind{
			"id":       kindStringOrNumber,
			"amount":   kindNumber,
			"currency": kindString,
			"status":   kindString,
		},
	},
	"order": {
		required: []string{"order_id", "customer_id", "items", "total"},
		types: map[string]valueKind{
			"order_id":    kindStringOrNumber,
			"customer_id": kindStringOrNumber,
			"items":       kindList,
			"total":       kindNumber,
		},
	},
	"fraud_alert": {
		required: []string{"alert_type", "risk_level", "timestamp"},
		types: map[string]valueKind{
			"alert_type":         kindString,
			"risk_level":         kindString,
			"timestamp":          kindString,
			"transaction_id":     kindStringOrNumber,
			"details":            kindObject,
			"recommended_action": kindString,
			"confidence_score":   kindNumber,
		},
	},
	"invoice": {
		required: []string{"invoice_number", "amount", "date"},
		types: map[string]valueKind{
			"invoice_number": kindStringOrNumber,
			"amount":         kindNumber,
			"date":           kindString,
			"due_date":       kindString,
			"customer":       kindStringOrObject,
			"items":          kindList,
		},
	},
}

var sqlInjectionMarkers = []string{
	"select ", "insert ", "update ", "delete ", "drop ",
	"union ", "--", "1=1", "or 1=1",
}

var scriptInjectionMarkers = []string{
	"<script>", "javascript:", "onerror=", "onload=",
}

var highRiskCountries = map[string]struct{}{
	"RU": {}, "KP": {}, "IR": {}, "SY": {},
}

// StructuredExtractor валидирует webhook-данные против шаблонов схем
// и помечает аномалии: расхождения схемы, ошибки типов, подозрительные
// паттерны.
type StructuredExtractor struct {
	largeAmount float64
}

func NewStructuredExtractor(largeAmount float64) *StructuredExtractor {
	if largeAmount <= 0 {
		largeAmount = 10000
	}
	return &StructuredExtractor{largeAmount: largeAmount}
}

func (e *StructuredExtractor) Name() string { return "structured" }

func (e *StructuredExtractor) Extract(_ context.Context, content domain.Content) (domain.ExtractionResult, error) {
	data := e.parsePayload(content)

	schemaName, confidence := identifySchema(data)
	valid, missing, typeErrors := validateSchema(data, schemaName)
	anomalies := e.detectAnomalies(data, schemaName)

	return domain.ExtractionResult{
		Extractor: e.Name(),
		Fields:    data,
		Schema: &domain.SchemaAnalysis{
			SchemaName: schemaName,
			Confidence: confidence,
			Valid:      valid,
			Missing:    missing,
			TypeErrors: typeErrors,
			Anomalies:  anomalies,
		},
		AlertNeeded: len(anomalies) > 0,
	}, nil
}

// parsePayload приводит вход к map. Невалидный JSON не ошибка:
// содержимое заворачивается в raw_content.
func (e *StructuredExtractor) parsePayload(content domain.Content) map[string]any {
	switch content.Kind {
	case domain.ContentStructured:
		return content.Structured
	case domain.ContentText:
		var m map[string]any
		if err := json.Unmarshal([]byte(content.Text), &m); err == nil {
			return m
		}
		return map[string]any{"raw_content": content.Text}
	case domain.ContentBinary:
		var m map[string]any
		if err := json.Unmarshal(content.Binary, &m); err == nil {
			return m
		}
		return map[string]any{"raw_content": string(content.Binary)}
	}
	return map[string]any{}
}

// identifySchema выбирает шаблон с максимальной долей присутствующих
// обязательных полей. Доля ниже 0.5 означает unknown.
func identifySchema(data map[string]any) (string, float64) {
	best := "unknown"
	bestScore := 0.0
	for _, name := range schemaOrder {
		tpl := schemaTemplates[name]
		matched := 0
		for _, field := range tpl.required {
			if _, ok := data[field]; ok {
				matched++
			}
		}
		score := float64(matched) / float64(len(tpl.required))
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	if bestScore < 0.5 {
		return "unknown", bestScore
	}
	return best, bestScore
}

func validateSchema(data map[string]any, schemaName string) (bool, []string, []string) {
	tpl, ok := schemaTemplates[schemaName]
	if !ok {
		return false, nil, nil
	}

	var missing []string
	for _, field := range tpl.required {
		if _, ok := data[field]; !ok {
			missing = append(missing, field)
		}
	}

	var typeErrors []string
	for field, kind := range tpl.types {
		v, ok := data[field]
		if !ok {
			continue
		}
		if !kind.matches(v) {
			typeErrors = append(typeErrors, field)
		}
	}
	sort.Strings(typeErrors)

	return len(missing) == 0 && len(typeErrors) == 0, missing, typeErrors
}

func (e *StructuredExtractor) detectAnomalies(data map[string]any, schemaName string) []domain.Anomaly {
	var anomalies []domain.Anomaly

	tpl, known := schemaTemplates[schemaName]
	if !known {
		return anomalies
	}

	// Лишние поля сверх схемы: больше 30% означает расхождение схемы
	var extra []string
	for field := range data {
		if _, ok := tpl.types[field]; !ok {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	mismatchPct := float64(len(extra)) / float64(len(tpl.types)) * 100
	if mismatchPct > 30 {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        "schema_mismatch",
			Description: fmt.Sprintf("Schema mismatch of %.1f%%", mismatchPct),
			Details: map[string]any{
				"extra_fields":        extra,
				"mismatch_percentage": mismatchPct,
			},
		})
	}

	var missingCritical []string
	for _, field := range tpl.required {
		if _, ok := data[field]; !ok {
			missingCritical = append(missingCritical, field)
		}
	}
	if len(missingCritical) > 0 {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        "missing_critical_fields",
			Description: fmt.Sprintf("Missing %d critical fields", len(missingCritical)),
			Details:     map[string]any{"missing_fields": missingCritical},
		})
	}

	var typeErrors []string
	for field, kind := range tpl.types {
		if v, ok := data[field]; ok && !kind.matches(v) {
			typeErrors = append(typeErrors, field)
		}
	}
	if len(typeErrors) > 0 {
		sort.Strings(typeErrors)
		anomalies = append(anomalies, domain.Anomaly{
			Type:        "type_inconsistencies",
			Description: fmt.Sprintf("Type inconsistencies in %d fields", len(typeErrors)),
			Details:     map[string]any{"fields_with_errors": typeErrors},
		})
	}

	if patterns := e.suspiciousPatterns(data); len(patterns) > 0 {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        "suspicious_patterns",
			Description: fmt.Sprintf("Found %d suspicious patterns", len(patterns)),
			Details:     map[string]any{"patterns": patterns},
		})
	}

	return anomalies
}

type suspiciousPattern struct {
	Path   string `json:"path"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

// suspiciousPatterns рекурсивно сканирует полезную нагрузку на признаки
// мошенничества и инъекций.
func (e *StructuredExtractor) suspiciousPatterns(data map[string]any) []suspiciousPattern {
	var found []suspiciousPattern
	e.checkValues(data, "", &found)
	return found
}

func (e *StructuredExtractor) checkValues(v any, path string, found *[]suspiciousPattern) {
	switch data := v.(type) {
	case map[string]any:
		if path == "" {
			// Индикаторы риска проверяются только на верхнем уровне
			if alertType, ok := data["alert_type"].(string); ok {
				lower := strings.ToLower(alertType)
				if strings.Contains(lower, "risk") || strings.Contains(lower, "fraud") {
					*found = append(*found, suspiciousPattern{"alert_type", alertType, "Fraud risk alert detected"})
				}
			}
			if level, ok := data["risk_level"].(string); ok {
				switch strings.ToLower(level) {
				case "high", "critical", "severe":
					*found = append(*found, suspiciousPattern{"risk_level", level, "High risk level detected"})
				}
			}
			if action, ok := data["recommended_action"].(string); ok {
				switch strings.ToLower(action) {
				case "block", "reject", "escalate", "investigate":
					*found = append(*found, suspiciousPattern{"recommended_action", action, "Suspicious recommended action"})
				}
			}
			if score, ok := numberValue(data["confidence_score"]); ok && score > 0.8 {
				*found = append(*found, suspiciousPattern{"confidence_score", score, "High confidence score for risk"})
			}
		}

		if factors, ok := data["risk_factors"].([]any); ok && len(factors) > 0 {
			*found = append(*found, suspiciousPattern{
				joinPath(path, "risk_factors"),
				fmt.Sprintf("%v", factors),
				fmt.Sprintf("Risk factors detected: %d", len(factors)),
			})
		}
		if location, ok := data["location"].(map[string]any); ok {
			if country, ok := location["country"].(string); ok {
				if _, risky := highRiskCountries[country]; risky {
					*found = append(*found, suspiciousPattern{
						joinPath(path, "location.country"), country, "Potentially high-risk country code",
					})
				}
			}
		}

		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value := data[key]
			current := joinPath(path, key)

			if s, ok := value.(string); ok {
				lower := strings.ToLower(s)
				for _, marker := range sqlInjectionMarkers {
					if strings.Contains(lower, marker) {
						*found = append(*found, suspiciousPattern{current, s, "Potential SQL injection"})
						break
					}
				}
				for _, marker := range scriptInjectionMarkers {
					if strings.Contains(lower, marker) {
						*found = append(*found, suspiciousPattern{current, s, "Potential script injection"})
						break
					}
				}
				if len(s) > 1000 {
					*found = append(*found, suspiciousPattern{current, s[:50] + "...", "Unusually long string"})
				}
			}

			if key == "amount" || key == "total" {
				if amount, ok := numberValue(value); ok && amount > e.largeAmount {
					*found = append(*found, suspiciousPattern{current, amount, "Large transaction amount"})
				}
			}

			e.checkValues(value, current, found)
		}
	case []any:
		for i, item := range data {
			e.checkValues(item, fmt.Sprintf("%s[%d]", path, i), found)
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
