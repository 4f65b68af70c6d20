package classify

import (
	"regexp"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// Лексиконы — фиксированные таблицы продакшен-системы.
// Счет намерения идет по числу совпадений целых слов (без учета регистра).
var intentLexicons = map[domain.Intent][]string{
	domain.IntentQuoteRequest: {
		"request for quote",
		"price inquiry",
		"cost estimate",
		"quotation needed",
		"pricing information",
		"product availability",
		"service quote",
		"quote request",
		"pricing quote",
		"estimate request",
	},
	domain.IntentComplaint: {
		"not satisfied",
		"poor service",
		"complaint",
		"issue with",
		"problem with",
		"dissatisfied",
		"doesn't work",
		"failed to",
		"refund",
		"disappointed",
		"unhappy",
		"terrible experience",
		"bad quality",
		"not working",
		"damaged",
	},
	domain.IntentInvoice: {
		"invoice",
		"payment due",
		"bill",
		"receipt",
		"amount due",
		"payment terms",
		"paid in full",
		"tax invoice",
		"billing details",
		"invoice number",
		"invoice date",
		"due date",
		"subtotal",
		"total",
		"bill to",
		"ship to",
		"purchase order",
		"quantity",
		"unit price",
		"description",
		"item",
		"payment method",
		"tax",
		"amount",
		"balance",
		"pay",
	},
	domain.IntentRegulatory: {
		"compliance",
		"regulation",
		"legal requirement",
		"GDPR",
		"FDA",
		"policy",
		"regulatory",
		"compliance requirement",
		"law",
		"directive",
		"privacy policy",
		"terms of service",
		"data protection",
		"legal",
		"compliance report",
	},
	domain.IntentFraudRisk: {
		"suspicious",
		"fraud",
		"unusual activity",
		"security breach",
		"unauthorized",
		"identity theft",
		"scam",
		"phishing",
		"money laundering",
		"risk alert",
		"suspicious transaction",
		"unusual pattern",
		"security alert",
		"compromised",
		"fraudulent",
		"risk",
		"alert",
		"transaction_risk",
		"risk_level",
		"high risk",
		"medium risk",
		"block",
		"flag",
		"review",
		"unusual_location",
		"velocity",
		"threshold",
		"exceeded",
		"multiple attempts",
		"risk_factors",
		"confidence_score",
		"recommended_action",
	},
}

// messageHeaderRe — почтовые заголовки. Засчитываются только в начале
// строки: "Bill To:" и "Invoice Date:" в теле инвойса заголовками не являются.
var messageHeaderRe = regexp.MustCompile(`(?m)^(From|To|Subject|Date|Cc|Bcc|Reply-To):`)

// messageIndicators — признаки письма в свободном тексте. Вместе с
// заголовками два и более совпадения означают формат MESSAGE.
var messageIndicators = []string{
	"SECURITY ALERT", "URGENT", "Dear", "Hello", "Hi,", "Sincerely,", "Regards,",
}

// urgentKeywords поднимают приоритет на одну ступень.
var urgentKeywords = []string{"urgent", "immediately", "asap", "emergency", "critical"}

// fraudKeywords безусловно форсируют HIGH.
var fraudKeywords = []string{"fraud", "unauthorized", "suspicious", "breach", "stolen"}

// invoiceIndicators — словарь для пере-тегирования GENERAL-документов.
var invoiceIndicators = []string{
	"invoice", "bill", "receipt", "amount due", "payment", "total", "subtotal", "tax",
}

// Подстрочные соответствия для быстрого пути по явному полю типа.
var typeFieldIntents = []struct {
	terms  []string
	intent domain.Intent
}{
	{[]string{"risk", "fraud", "security", "alert", "suspicious"}, domain.IntentFraudRisk},
	{[]string{"invoice", "bill", "payment", "receipt"}, domain.IntentInvoice},
	{[]string{"complaint", "issue", "problem", "ticket"}, domain.IntentComplaint},
	{[]string{"quote", "rfq", "inquiry", "pricing"}, domain.IntentQuoteRequest},
	{[]string{"regulation", "compliance", "policy", "legal"}, domain.IntentRegulatory},
}

var emailAddressRe = regexp.MustCompile(`[\w.-]+@[\w.-]+`)

// currencyPatterns ловят денежные суммы в разных написаниях.
var currencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[$€£]\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`),
	regexp.MustCompile(`(?i)\d{1,3}(?:,\d{3})*(?:\.\d{2})?\s*[$€£]`),
	regexp.MustCompile(`(?i)total\s*:?\s*[$€£]?\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`),
	regexp.MustCompile(`(?i)amount\s*:?\s*[$€£]?\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`),
	regexp.MustCompile(`(?i)balance\s*:?\s*[$€£]?\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`),
	regexp.MustCompile(`(?i)due\s*:?\s*[$€£]?\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`),
}

var nonNumericRe = regexp.MustCompile(`[^0-9.]`)

// intentRegexps — предкомпилированные whole-word шаблоны по лексиконам.
var intentRegexps = func() map[domain.Intent][]*regexp.Regexp {
	out := make(map[domain.Intent][]*regexp.Regexp, len(intentLexicons))
	for intent, keywords := range intentLexicons {
		res := make([]*regexp.Regexp, 0, len(keywords))
		for _, kw := range keywords {
			res = append(res, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		out[intent] = res
	}
	return out
}()
