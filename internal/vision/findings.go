package vision

import (
	"fmt"
	"strings"
)

type phraseRule struct {
	contains []string
	phrase   string
}

var concernRules = []phraseRule{
	{[]string{"wounds", "bleeding"}, "Visible wounds or bleeding detected"},
	{[]string{"distress", "pain"}, "Signs of distress or pain observed"},
	{[]string{"unconscious", "unresponsive"}, "Animal appears unconscious or unresponsive"},
	{[]string{"swollen"}, "Swelling detected"},
	{[]string{"discharge"}, "Abnormal discharge observed"},
	{[]string{"lethargic", "weak"}, "Lethargy or weakness detected"},
	{[]string{"limping"}, "Limping or mobility issues observed"},
}

var positiveRules = []phraseRule{
	{[]string{"eyes"}, "Clear, healthy eyes"},
	{[]string{"coat"}, "Healthy coat condition"},
	{[]string{"alert"}, "Alert and responsive behavior"},
}

// finding is one VQA question/answer pair.
type finding struct {
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	Confidence   float64 `json:"confidence"`
	IsConcerning bool    `json:"is_concerning"`
	IsPositive   bool    `json:"is_positive"`
}

func concernPhrase(f finding) string {
	if p, ok := matchRule(concernRules, f.Question); ok {
		return p
	}
	return "Health concern detected: " + f.Answer
}

func positivePhrase(f finding) string {
	if p, ok := matchRule(positiveRules, f.Question); ok {
		return p
	}
	return "Normal health indicator"
}

func matchRule(rules []phraseRule, question string) (string, bool) {
	q := strings.ToLower(question)
	for _, r := range rules {
		for _, c := range r.contains {
			if strings.Contains(q, c) {
				return r.phrase, true
			}
		}
	}
	return "", false
}

func assessmentReport(condition string, concerns, positives []string, summary string, processingTime float64, model string) string {
	var b strings.Builder
	b.WriteString("AI Visual Veterinary Assessment Report\n")
	fmt.Fprintf(&b, "Model: %s | Processing time: %.1fs\n\n", model, processingTime)
	fmt.Fprintf(&b, "OVERALL STATUS: %s\n\n", condition)

	writeBullets(&b, "CONCERNS IDENTIFIED:", concerns)
	writeBullets(&b, "POSITIVE FINDINGS:", positives)

	if s := strings.TrimSpace(summary); s != "" {
		fmt.Fprintf(&b, "SUMMARY: %s\n\n", s)
	}

	b.WriteString("RECOMMENDATIONS:\n")
	switch {
	case len(concerns) > 2:
		b.WriteString("• URGENT: Seek immediate veterinary attention\n")
		b.WriteString("• Multiple concerns detected requiring professional evaluation\n")
	case len(concerns) >= 1:
		b.WriteString("• Schedule veterinary consultation within 24-48 hours\n")
		b.WriteString("• Monitor pet closely for any changes\n")
	default:
		b.WriteString("• Continue regular care and monitoring\n")
		b.WriteString("• Maintain current diet and exercise routine\n")
	}

	b.WriteString("\nIMPORTANT: This AI assessment provides preliminary visual analysis only. ")
	b.WriteString("Professional veterinary examination is recommended for proper diagnosis and treatment.")
	return b.String()
}

func writeBullets(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title)
	b.WriteString("\n")
	for _, it := range items {
		fmt.Fprintf(b, "• %s\n", it)
	}
	b.WriteString("\n")
}
