package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

func anomalyTypes(analysis *domain.SchemaAnalysis) []string {
	var types []string
	for _, a := range analysis.Anomalies {
		types = append(types, a.Type)
	}
	return types
}

func TestStructuredExtractorValidTransaction(t *testing.T) {
	t.Parallel()
	ext := NewStructuredExtractor(10000)

	res, err := ext.Extract(context.Background(), domain.StructuredContent(map[string]any{
		"id":       "tx-1001",
		"amount":   float64(250),
		"currency": "USD",
		"status":   "settled",
	}))
	require.NoError(t, err)

	require.NotNil(t, res.Schema)
	assert.Equal(t, "transaction", res.Schema.SchemaName)
	assert.Equal(t, 1.0, res.Schema.Confidence)
	assert.True(t, res.Schema.Valid)
	assert.Empty(t, res.Schema.Anomalies)
	assert.False(t, res.AlertNeeded)
}

func TestStructuredExtractorUnknownSchema(t *testing.T) {
	t.Parallel()
	ext := NewStructuredExtractor(10000)

	res, err := ext.Extract(context.Background(), domain.StructuredContent(map[string]any{
		"foo": "bar",
	}))
	require.NoError(t, err)

	assert.Equal(t, "unknown", res.Schema.SchemaName)
	assert.False(t, res.Schema.Valid)
	// Для неизвестной схемы аномалии не считаются
	assert.Empty(t, res.Schema.Anomalies)
}

func TestStructuredExtractorMissingAndTypeErrors(t *testing.T) {
	t.Parallel()
	ext := NewStructuredExtractor(10000)

	res, err := ext.Extract(context.Background(), domain.StructuredContent(map[string]any{
		"id":     "tx-1",
		"amount": "not-a-number",
		"status": "pending",
	}))
	require.NoError(t, err)

	assert.Equal(t, "transaction", res.Schema.SchemaName)
	assert.False(t, res.Schema.Valid)
	assert.Equal(t, []string{"currency"}, res.Schema.Missing)
	assert.Equal(t, []string{"amount"}, res.Schema.TypeErrors)

	types := anomalyTypes(res.Schema)
	assert.Contains(t, types, "missing_critical_fields")
	assert.Contains(t, types, "type_inconsistencies")
	assert.True(t, res.AlertNeeded)
}

func TestStructuredExtractorSchemaMismatch(t *testing.T) {
	t.Parallel()
	ext := NewStructuredExtractor(10000)

	// transaction описывает 4 поля: 2 лишних дают 50% расхождения
	res, err := ext.Extract(context.Background(), domain.StructuredContent(map[string]any{
		"id":       "tx-2",
		"amount":   float64(100),
		"currency": "EUR",
		"status":   "pending",
		"extra_a":  "x",
		"extra_b":  "y",
	}))
	require.NoError(t, err)

	assert.Contains(t, anomalyTypes(res.Schema), "schema_mismatch")
	assert.True(t, res.AlertNeeded)
}

func TestStructuredExtractorSuspiciousPatterns(t *testing.T) {
	t.Parallel()
	ext := NewStructuredExtractor(10000)

	t.Run("fraud alert payload", func(t *testing.T) {
		t.Parallel()
		res, err := ext.Extract(context.Background(), domain.StructuredContent(map[string]any{
			"alert_type":         "fraud_alert",
			"risk_level":         "HIGH",
			"timestamp":          "2026-08-29T10:00:00Z",
			"recommended_action": "block",
			"confidence_score":   0.95,
			"risk_factors":       []any{"unusual_location", "velocity"},
			"location":           map[string]any{"country": "KP"},
		}))
		require.NoError(t, err)

		assert.Equal(t, "fraud_alert", res.Schema.SchemaName)
		require.Contains(t, anomalyTypes(res.Schema), "suspicious_patterns")

		var patterns []suspiciousPattern
		for _, a := range res.Schema.Anomalies {
			if a.Type == "suspicious_patterns" {
				patterns = a.Details["patterns"].([]suspiciousPattern)
			}
		}
		reasons := make([]string, 0, len(patterns))
		for _, p := range patterns {
			reasons = append(reasons, p.Reason)
		}
		assert.Contains(t, reasons, "Fraud risk alert detected")
		assert.Contains(t, reasons, "High risk level detected")
		assert.Contains(t, reasons, "Suspicious recommended action")
		assert.Contains(t, reasons, "High confidence score for risk")
		assert.Contains(t, reasons, "Potentially high-risk country code")
	})

	t.Run("injection and oversized values", func(t *testing.T) {
		t.Parallel()
		res, err := ext.Extract(context.Background(), domain.StructuredContent(map[string]any{
			"event_type": "user.created",
			"timestamp":  "2026-08-29T10:00:00Z",
			"data": map[string]any{
				"name":    "x' or 1=1 --",
				"bio":     "<script>alert(1)</script>",
				"comment": strings.Repeat("a", 1500),
			},
		}))
		require.NoError(t, err)
		assert.Contains(t, anomalyTypes(res.Schema), "suspicious_patterns")
	})

	t.Run("large amount", func(t *testing.T) {
		t.Parallel()
		res, err := ext.Extract(context.Background(), domain.StructuredContent(map[string]any{
			"id":       "tx-3",
			"amount":   float64(15000),
			"currency": "USD",
			"status":   "pending",
		}))
		require.NoError(t, err)
		assert.Contains(t, anomalyTypes(res.Schema), "suspicious_patterns")
		assert.True(t, res.AlertNeeded)
	})
}

func TestStructuredExtractorRawTextFallback(t *testing.T) {
	t.Parallel()
	ext := NewStructuredExtractor(10000)

	res, err := ext.Extract(context.Background(), domain.TextContent("definitely not json"))
	require.NoError(t, err)

	assert.Equal(t, "definitely not json", res.Fields["raw_content"])
	assert.Equal(t, "unknown", res.Schema.SchemaName)
}
