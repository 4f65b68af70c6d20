package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// complianceKeywords — нормативные стандарты, присутствие которых
// в документе подлежит флагированию.
var complianceKeywords = []string{
	"GDPR", "FDA", "HIPAA", "PCI DSS", "SOX", "CCPA", "GLBA",
	"FERPA", "COPPA", "FISMA", "ITAR", "EAR", "NERC CIP",
	"ISO 27001", "NIST", "compliance", "regulation", "regulatory",
	"data protection", "privacy policy", "personal data",
}

var highPriorityCompliance = []string{"GDPR", "FDA", "HIPAA", "PCI DSS"}

var docInvoiceIndicators = []string{
	"invoice", "bill", "receipt", "payment", "amount due",
	"total due", "balance due", "invoice number", "invoice date",
	"bill to", "ship to", "payment terms", "subtotal", "tax",
}

var docPolicyIndicators = []string{
	"policy", "agreement", "terms and conditions", "privacy",
	"compliance", "regulation", "guidelines", "procedure",
	"protocol", "standard operating procedure", "sop",
	"effective date", "revision date", "version",
}

var (
	invoiceNumberRe = regexp.MustCompile(`(?i)(?:invoice|bill|receipt)(?:\s+(?:no|num|number|#))?\s*[:#]?\s*([A-Z0-9][-A-Z0-9]*)`)
	invoiceDateRe   = regexp.MustCompile(`(?i)(?:invoice|bill|receipt)(?:\s+date)?\s*[:#]?\s*(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{2,4})`)
	totalAmountRe   = regexp.MustCompile(`(?i)(?:total|amount\s+due|balance\s+due|grand\s+total)\s*[:#]?\s*[$€£]?\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
	currencyRe      = regexp.MustCompile(`(?i)(?:total|amount\s+due|balance\s+due|grand\s+total)\s*[:#]?\s*([$€£])\s*\d`)
	lineItemRe      = regexp.MustCompile(`(.+?)\s+(\d+)\s+[$€£]?\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
	itemsHeaderRe   = regexp.MustCompile(`(?i)item|description|product|service|qty|quantity|price|amount`)
	itemsFooterRe   = regexp.MustCompile(`(?i)subtotal|total|tax`)

	policyNumberRe  = regexp.MustCompile(`(?i)(?:policy|document)(?:\s+(?:no|num|number|#))?\s*[:#]?\s*([A-Z0-9][-A-Z0-9]*)`)
	effectiveDateRe = regexp.MustCompile(`(?i)(?:effective|valid from|start)(?:\s+date)?\s*[:#]?\s*(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{2,4})`)
	versionRe       = regexp.MustCompile(`(?i)(?:version|revision|rev)\.?\s*[:#]?\s*([\d.]+)`)
	sectionHeaderRe = regexp.MustCompile(`^(?:[1-9IVX]+\.?\s+[A-Z]|[A-Z][A-Z\s]{2,})`)

	anyDateRe   = regexp.MustCompile(`(?i)\b(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{2,4})\b`)
	anyAmountRe = regexp.MustCompile(`[$€£]\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)

	ssnRe        = regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`)
	creditCardRe = regexp.MustCompile(`\b\d{16}\b`)
	emailRe      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// DocumentExtractor разбирает постраничные документы: определяет подтип
// (инвойс, регламент, общий), извлекает поля и выставляет флаги.
type DocumentExtractor struct {
	largeAmount float64
}

func NewDocumentExtractor(largeAmount float64) *DocumentExtractor {
	if largeAmount <= 0 {
		largeAmount = 10000
	}
	return &DocumentExtractor{largeAmount: largeAmount}
}

func (e *DocumentExtractor) Name() string { return "document" }

func (e *DocumentExtractor) Extract(_ context.Context, content domain.Content) (domain.ExtractionResult, error) {
	metadata := map[string]any{}
	var text string

	switch content.Kind {
	case domain.ContentBinary:
		// Бинарный вход валидируем как PDF и считаем страницы.
		// Текстового слоя движок не достает: анализ идет по Reference.
		pages, err := api.PageCount(bytes.NewReader(content.Binary), nil)
		if err != nil {
			return domain.ExtractionResult{}, fmt.Errorf("document: parse pdf: %w", err)
		}
		metadata["page_count"] = pages
		if content.Reference != "" {
			metadata["reference"] = content.Reference
		}
		text = content.Reference
	case domain.ContentText:
		text = content.Text
	default:
		return domain.ExtractionResult{}, fmt.Errorf("document: unsupported content kind %q", content.Kind)
	}

	subtype := determineSubtype(text)

	var fields map[string]any
	var flags []domain.Flag
	switch subtype {
	case domain.DocInvoice:
		fields = extractInvoiceFields(text)
		flags = e.flagInvoiceIssues(fields)
	case domain.DocPolicy:
		fields = extractPolicyFields(text)
		flags = flagPolicyIssues(fields, text)
	default:
		fields = e.extractGeneralFields(text)
		flags = e.flagGeneralIssues(fields, text)
	}

	return domain.ExtractionResult{
		Extractor: e.Name(),
		Fields:    fields,
		Document: &domain.DocumentAnalysis{
			Subtype:  subtype,
			Metadata: metadata,
			Flags:    flags,
		},
		AlertNeeded: len(flags) > 0,
	}, nil
}

// determineSubtype: подтип выигрывает при трех и более индикаторах.
func determineSubtype(text string) domain.DocumentSubtype {
	lower := strings.ToLower(text)

	invoiceScore := 0
	for _, ind := range docInvoiceIndicators {
		if strings.Contains(lower, ind) {
			invoiceScore++
		}
	}
	policyScore := 0
	for _, ind := range docPolicyIndicators {
		if strings.Contains(lower, ind) {
			policyScore++
		}
	}

	switch {
	case invoiceScore > policyScore && invoiceScore >= 3:
		return domain.DocInvoice
	case policyScore > invoiceScore && policyScore >= 3:
		return domain.DocPolicy
	}
	return domain.DocGeneral
}

func extractInvoiceFields(text string) map[string]any {
	fields := map[string]any{}

	if m := invoiceNumberRe.FindStringSubmatch(text); m != nil {
		fields["invoice_number"] = strings.TrimSpace(m[1])
	}
	if m := invoiceDateRe.FindStringSubmatch(text); m != nil {
		fields["invoice_date"] = strings.TrimSpace(m[1])
	}
	if m := totalAmountRe.FindStringSubmatch(text); m != nil {
		raw := strings.ReplaceAll(strings.TrimSpace(m[1]), ",", "")
		if total, err := strconv.ParseFloat(raw, 64); err == nil {
			fields["total_amount"] = total
		} else {
			fields["total_amount_raw"] = raw
		}
	}
	if m := currencyRe.FindStringSubmatch(text); m != nil {
		currencyMap := map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}
		symbol := strings.TrimSpace(m[1])
		if code, ok := currencyMap[symbol]; ok {
			fields["currency"] = code
		} else {
			fields["currency"] = symbol
		}
	}

	if items := extractLineItems(text); len(items) > 0 {
		fields["line_items"] = items
	}
	return fields
}

type lineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

func extractLineItems(text string) []lineItem {
	var items []lineItem
	inSection := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if itemsHeaderRe.MatchString(line) && !inSection {
			inSection = true
			continue
		}
		if inSection && itemsFooterRe.MatchString(line) {
			inSection = false
			continue
		}
		if !inSection {
			continue
		}
		m := lineItemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
		if err != nil {
			continue
		}
		items = append(items, lineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    qty,
			Price:       price,
		})
	}
	return items
}

func extractPolicyFields(text string) map[string]any {
	fields := map[string]any{}

	if m := policyNumberRe.FindStringSubmatch(text); m != nil {
		fields["policy_number"] = strings.TrimSpace(m[1])
	}
	if m := effectiveDateRe.FindStringSubmatch(text); m != nil {
		fields["effective_date"] = strings.TrimSpace(m[1])
	}
	if m := versionRe.FindStringSubmatch(text); m != nil {
		fields["version"] = strings.TrimSpace(m[1])
	}
	if refs := complianceReferences(text); len(refs) > 0 {
		fields["compliance_references"] = refs
	}
	if sections := extractSections(text); len(sections) > 0 {
		fields["sections"] = sections
	}
	return fields
}

func extractSections(text string) map[string]string {
	sections := map[string]string{}
	var current string
	var content []string

	flush := func() {
		if current != "" && len(content) > 0 {
			sections[current] = strings.Join(content, " ")
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if sectionHeaderRe.MatchString(line) {
			flush()
			current = line
			content = nil
		} else if current != "" {
			content = append(content, line)
		}
	}
	flush()
	return sections
}

func (e *DocumentExtractor) extractGeneralFields(text string) map[string]any {
	fields := map[string]any{}

	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fields["title"] = line
			break
		}
	}

	if dates := anyDateRe.FindAllString(text, -1); len(dates) > 0 {
		fields["dates"] = dates
	}

	var amounts []float64
	for _, m := range anyAmountRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			amounts = append(amounts, v)
		}
	}
	if len(amounts) > 0 {
		fields["monetary_amounts"] = amounts
	}

	if refs := complianceReferences(text); len(refs) > 0 {
		fields["compliance_references"] = refs
	}
	return fields
}

func complianceReferences(text string) []string {
	var refs []string
	for _, kw := range complianceKeywords {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if re.MatchString(text) {
			refs = append(refs, kw)
		}
	}
	return refs
}

func (e *DocumentExtractor) flagInvoiceIssues(fields map[string]any) []domain.Flag {
	var flags []domain.Flag

	if total, ok := fields["total_amount"].(float64); ok && total > e.largeAmount {
		flags = append(flags, domain.Flag{
			Type:        domain.FlagHighValueInvoice,
			Description: fmt.Sprintf("Invoice total amount (%v) exceeds %v", total, e.largeAmount),
			Severity:    domain.SeverityHigh,
		})
	}

	var missing []string
	for _, field := range []string{"invoice_number", "invoice_date", "total_amount"} {
		if _, ok := fields[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		flags = append(flags, domain.Flag{
			Type:        domain.FlagMissingCriticalFields,
			Description: "Missing critical fields: " + strings.Join(missing, ", "),
			Severity:    domain.SeverityMedium,
		})
	}

	if items, ok := fields["line_items"].([]lineItem); ok {
		var expensive []string
		for _, item := range items {
			if item.Price > 5000 {
				expensive = append(expensive, item.Description)
			}
		}
		if len(expensive) > 0 {
			flags = append(flags, domain.Flag{
				Type:        domain.FlagExpensiveLineItems,
				Description: "Unusually expensive line items: " + strings.Join(expensive, ", "),
				Severity:    domain.SeverityMedium,
			})
		}
	}

	return flags
}

func flagPolicyIssues(fields map[string]any, text string) []domain.Flag {
	var flags []domain.Flag

	if refs, ok := fields["compliance_references"].([]string); ok && len(refs) > 0 {
		flags = append(flags, domain.Flag{
			Type:        domain.FlagComplianceReferences,
			Description: "Document references compliance standards: " + strings.Join(refs, ", "),
			Severity:    domain.SeverityMedium,
		})
	}

	var highPriority []string
	for _, kw := range highPriorityCompliance {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if re.MatchString(text) {
			highPriority = append(highPriority, kw)
		}
	}
	if len(highPriority) > 0 {
		flags = append(flags, domain.Flag{
			Type:        domain.FlagHighPriorityCompliance,
			Description: "Document references high-priority compliance: " + strings.Join(highPriority, ", "),
			Severity:    domain.SeverityHigh,
		})
	}

	var missing []string
	for _, field := range []string{"policy_number", "effective_date", "version"} {
		if _, ok := fields[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		flags = append(flags, domain.Flag{
			Type:        domain.FlagMissingPolicyMetadata,
			Description: "Missing policy metadata: " + strings.Join(missing, ", "),
			Severity:    domain.SeverityLow,
		})
	}

	return flags
}

func (e *DocumentExtractor) flagGeneralIssues(fields map[string]any, text string) []domain.Flag {
	var flags []domain.Flag

	if refs, ok := fields["compliance_references"].([]string); ok && len(refs) > 0 {
		flags = append(flags, domain.Flag{
			Type:        domain.FlagComplianceReferences,
			Description: "Document references compliance standards: " + strings.Join(refs, ", "),
			Severity:    domain.SeverityMedium,
		})
	}

	if amounts, ok := fields["monetary_amounts"].([]float64); ok {
		var high []string
		for _, amount := range amounts {
			if amount > e.largeAmount {
				high = append(high, strconv.FormatFloat(amount, 'f', -1, 64))
			}
		}
		if len(high) > 0 {
			flags = append(flags, domain.Flag{
				Type:        domain.FlagHighMonetaryAmounts,
				Description: "Document contains high monetary amounts: " + strings.Join(high, ", "),
				Severity:    domain.SeverityMedium,
			})
		}
	}

	var sensitive []string
	for _, probe := range []struct {
		re   *regexp.Regexp
		name string
	}{
		{ssnRe, "SSN_PATTERN"},
		{creditCardRe, "CREDIT_CARD_PATTERN"},
		{emailRe, "EMAIL_PATTERN"},
	} {
		if probe.re.MatchString(text) {
			sensitive = append(sensitive, probe.name)
		}
	}
	if len(sensitive) > 0 {
		sort.Strings(sensitive)
		flags = append(flags, domain.Flag{
			Type:        domain.FlagSensitiveInfo,
			Description: "Document may contain sensitive information patterns: " + strings.Join(sensitive, ", "),
			Severity:    domain.SeverityHigh,
		})
	}

	return flags
}
