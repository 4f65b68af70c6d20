package extract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// Extractor превращает сырой вход в структурированные поля и
// форматный аналитический блок. Внутренности парсинга скрыты за
// этим контрактом: классификатор и маршрутизатор видят только результат.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, content domain.Content) (domain.ExtractionResult, error)
}

// Registry отдает экстрактор по формату. MIXED и незарегистрированные
// форматы получают generic-фоллбэк: текст без аналитики, маршрут log-only.
type Registry struct {
	byFormat map[domain.Format]Extractor
	fallback Extractor
}

func NewRegistry(threshold float64) *Registry {
	return &Registry{
		byFormat: map[domain.Format]Extractor{
			domain.FormatMessage:    NewMessageExtractor(),
			domain.FormatStructured: NewStructuredExtractor(threshold),
			domain.FormatDocument:   NewDocumentExtractor(threshold),
		},
		fallback: genericExtractor{},
	}
}

func (r *Registry) For(format domain.Format) Extractor {
	if ext, ok := r.byFormat[format]; ok {
		return ext
	}
	return r.fallback
}

// Fallback — generic-экстрактор для деградированного пути.
func (r *Registry) Fallback() Extractor { return r.fallback }

// genericExtractor ничего не анализирует: только текст и пустые поля.
type genericExtractor struct{}

func (genericExtractor) Name() string { return "generic" }

func (genericExtractor) Extract(_ context.Context, content domain.Content) (domain.ExtractionResult, error) {
	return domain.ExtractionResult{
		Extractor: "generic",
		Fields: map[string]any{
			"raw_text": AnalyzableText(content),
		},
	}, nil
}

// AnalyzableText приводит содержимое к тексту для лексиконного анализа.
// Для писем это subject + body, для структурированных данных рекурсивная
// выжимка ключей и значений, для бинарных файлов только ссылка.
func AnalyzableText(content domain.Content) string {
	switch content.Kind {
	case domain.ContentText:
		headers, body := splitHeaders(content.Text)
		if len(headers) == 0 {
			return content.Text
		}
		return strings.TrimSpace(headers["subject"] + " " + body)
	case domain.ContentStructured:
		return flattenStructured(content.Structured)
	case domain.ContentBinary:
		if content.Reference != "" {
			return content.Reference
		}
		return "binary document content"
	}
	return ""
}

var headerLineRe = regexp.MustCompile(`^([\w-]+):\s*(.+)$`)

// splitHeaders разбирает плоский текст письма на заголовки и тело.
// Пустая строка завершает секцию заголовков.
func splitHeaders(text string) (map[string]string, string) {
	if !strings.Contains(text, "Subject:") && !strings.Contains(text, "From:") {
		return nil, text
	}

	headers := map[string]string{}
	var bodyLines []string
	inHeaders := true

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if inHeaders {
			if line == "" {
				inHeaders = false
				continue
			}
			if m := headerLineRe.FindStringSubmatch(line); m != nil {
				headers[strings.ToLower(m[1])] = m[2]
				continue
			}
			// Строка без двоеточия внутри шапки означает, что шапки нет
			inHeaders = false
			bodyLines = append(bodyLines, line)
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	return headers, strings.Join(bodyLines, "\n")
}

// flattenStructured рекурсивно выжимает ключи и значения в строку.
func flattenStructured(v any) string {
	var parts []string
	switch data := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts = append(parts, keys...)
		for _, k := range keys {
			switch val := data[k].(type) {
			case string, int, int64, float64, bool:
				parts = append(parts, fmt.Sprintf("%s: %v", k, val))
			case map[string]any, []any:
				parts = append(parts, flattenStructured(val))
			}
		}
	case []any:
		for _, item := range data {
			switch val := item.(type) {
			case string, int, int64, float64, bool:
				parts = append(parts, fmt.Sprintf("%v", val))
			case map[string]any, []any:
				parts = append(parts, flattenStructured(val))
			}
		}
	}
	return strings.Join(parts, " ")
}
