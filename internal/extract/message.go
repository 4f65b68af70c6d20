package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/xela07ax/docflow-gateway/internal/domain"
)

// toneIndicators — словари тональности. Порядок разрешения ничьих:
// THREATENING > ESCALATION > ANGRY > POLITE > NEUTRAL.
var toneIndicators = map[domain.Tone][]string{
	domain.ToneEscalation: {
		"escalate", "urgent", "immediately", "supervisor", "manager",
		"unacceptable", "demand", "insist", "higher level",
	},
	domain.TonePolite: {
		"please", "thank you", "appreciate", "grateful", "kindly",
		"regards", "sincerely", "respectfully",
	},
	domain.ToneThreatening: {
		"legal action", "lawyer", "attorney", "sue", "lawsuit", "court",
		"legal", "consequences", "deadline", "ultimatum", "or else",
	},
	domain.ToneAngry: {
		"angry", "upset", "furious", "outraged", "disappointed", "frustrated",
		"terrible", "horrible", "worst", "never", "unacceptable", "ridiculous",
	},
}

var tonePriorityOrder = []domain.Tone{
	domain.ToneThreatening, domain.ToneEscalation, domain.ToneAngry,
	domain.TonePolite, domain.ToneNeutral,
}

var highUrgencyIndicators = []string{
	"urgent", "immediately", "asap", "emergency", "critical",
	"as soon as possible", "right away", "time sensitive", "deadline",
	"today", "now", "priority",
}

var mediumUrgencyIndicators = []string{
	"soon", "timely", "promptly", "quickly", "expedite",
	"this week", "follow up", "important",
}

var toneRegexps = func() map[domain.Tone][]*regexp.Regexp {
	out := make(map[domain.Tone][]*regexp.Regexp, len(toneIndicators))
	for tone, indicators := range toneIndicators {
		res := make([]*regexp.Regexp, 0, len(indicators))
		for _, ind := range indicators {
			res = append(res, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(ind)+`\b`))
		}
		out[tone] = res
	}
	return out
}()

var referenceIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reference\s*(?:number|#|id|code)?\s*[:#]?\s*([A-Z0-9]{5,})`),
	regexp.MustCompile(`(?i)order\s*(?:number|#|id)?\s*[:#]?\s*([A-Z0-9]{5,})`),
	regexp.MustCompile(`(?i)ticket\s*(?:number|#|id)?\s*[:#]?\s*([A-Z0-9]{5,})`),
	regexp.MustCompile(`(?i)case\s*(?:number|#|id)?\s*[:#]?\s*([A-Z0-9]{5,})`),
	regexp.MustCompile(`(?i)invoice\s*(?:number|#|id)?\s*[:#]?\s*([A-Z0-9]{5,})`),
}

var addressRe = regexp.MustCompile(`[\w.-]+@[\w.-]+`)

// MessageExtractor извлекает структурированные поля из письма,
// определяет тональность и срочность.
type MessageExtractor struct{}

func NewMessageExtractor() *MessageExtractor { return &MessageExtractor{} }

func (e *MessageExtractor) Name() string { return "message" }

func (e *MessageExtractor) Extract(_ context.Context, content domain.Content) (domain.ExtractionResult, error) {
	text := content.Text
	if content.Kind == domain.ContentBinary {
		text = string(content.Binary)
	}

	headers, body := splitHeaders(text)
	subject := headers["subject"]
	// Тональность и срочность считаем по subject + body
	analyzed := strings.ToLower(subject + " " + body)

	fields := map[string]any{
		"sender":    headers["from"],
		"recipient": headers["to"],
		"subject":   subject,
		"date":      headers["date"],
		"cc":        headers["cc"],
		"reply_to":  headers["reply-to"],
		"issue":     extractIssue(subject, body),
	}
	if addr := addressRe.FindString(headers["from"]); addr != "" {
		fields["sender_email"] = addr
	}
	if refs := extractReferenceIDs(body); len(refs) > 0 {
		fields["reference_ids"] = refs
	}

	tone, toneMatched := identifyTone(analyzed)
	urgency, urgencyMatched := determineUrgency(analyzed, tone)
	handling := determineHandling(tone, urgency)

	return domain.ExtractionResult{
		Extractor: e.Name(),
		Fields:    fields,
		Message: &domain.MessageAnalysis{
			Tone:              tone,
			Urgency:           urgency,
			Handling:          handling,
			ToneIndicators:    toneMatched,
			UrgencyIndicators: urgencyMatched,
		},
		AlertNeeded: handling == domain.HandlingEscalate,
	}, nil
}

func extractIssue(subject, body string) string {
	if len(subject) > 5 {
		return subject
	}
	paragraphs := strings.Split(body, "\n\n")
	if len(paragraphs) > 0 {
		first := strings.TrimSpace(paragraphs[0])
		if len(first) > 10 {
			sentence := strings.SplitN(first, ".", 2)[0]
			if len(sentence) > 100 {
				return sentence[:100] + "..."
			}
			return sentence
		}
	}
	return "Unknown issue"
}

func extractReferenceIDs(body string) []string {
	seen := map[string]struct{}{}
	var refs []string
	for _, re := range referenceIDPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			refs = append(refs, m[1])
		}
	}
	sort.Strings(refs)
	return refs
}

func identifyTone(text string) (domain.Tone, []string) {
	scores := map[domain.Tone]int{}
	maxScore := 0
	for tone, patterns := range toneRegexps {
		score := 0
		for _, re := range patterns {
			score += len(re.FindAllString(text, -1))
		}
		scores[tone] = score
		if score > maxScore {
			maxScore = score
		}
	}
	if maxScore == 0 {
		return domain.ToneNeutral, nil
	}

	// При равном счете побеждает более тревожная тональность
	for _, tone := range tonePriorityOrder {
		if scores[tone] == maxScore {
			var matched []string
			for i, re := range toneRegexps[tone] {
				if re.MatchString(text) {
					matched = append(matched, toneIndicators[tone][i])
				}
			}
			return tone, matched
		}
	}
	return domain.ToneNeutral, nil
}

func determineUrgency(text string, tone domain.Tone) (domain.Urgency, []string) {
	var matched []string
	highCount := 0
	for _, ind := range highUrgencyIndicators {
		if strings.Contains(text, ind) {
			highCount++
			matched = append(matched, ind)
		}
	}
	mediumCount := 0
	for _, ind := range mediumUrgencyIndicators {
		if strings.Contains(text, ind) {
			mediumCount++
			matched = append(matched, ind)
		}
	}

	base := domain.UrgencyLow
	if highCount > 0 {
		base = domain.UrgencyHigh
	} else if mediumCount > 0 {
		base = domain.UrgencyMedium
	}

	switch tone {
	case domain.ToneThreatening, domain.ToneEscalation:
		if base == domain.UrgencyLow {
			return domain.UrgencyMedium, matched
		}
		return domain.UrgencyHigh, matched
	case domain.ToneAngry:
		if base == domain.UrgencyLow {
			return domain.UrgencyMedium, matched
		}
		return base, matched
	}
	return base, matched
}

func determineHandling(tone domain.Tone, urgency domain.Urgency) domain.Handling {
	if urgency == domain.UrgencyHigh || tone == domain.ToneThreatening || tone == domain.ToneEscalation {
		return domain.HandlingEscalate
	}
	if urgency == domain.UrgencyMedium && tone == domain.ToneAngry {
		return domain.HandlingEscalate
	}
	return domain.HandlingLogAndClose
}
