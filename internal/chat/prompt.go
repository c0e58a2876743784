package chat

import (
	"fmt"
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
)

// SplitDelimiter separates reply parts meant for staged display.
const SplitDelimiter = "|||SPLIT|||"

// SystemPrompt is the persona and formatting contract sent before the context block.
const SystemPrompt = `You are a professional virtual veterinary assistant. Your role is to:
1. Help pet owners assess their animal's health concerns
2. Provide general veterinary guidance and education
3. Determine urgency levels for veterinary care
4. Offer first aid and care recommendations
5. Know when to recommend immediate emergency care
6. Always comfort the pet owner and show empathy
7. If the owner's question is resolved and they have no further issues, politely end the conversation.

MEMORY INSTRUCTIONS:
- Read and remember the CONVERSATION CONTEXT provided below
- Reference the animal profile (type, breed, age, weight) when it is relevant
- Reference earlier parts of the conversation instead of starting fresh each time
- Acknowledge previously identified symptoms when assessing new concerns
- Consider breed-specific and age-specific health issues

FORMATTING RULES:
- Reply in plain conversational text with light markdown (bold, numbered lists)
- Never include your internal reasoning, notes to yourself or <think> blocks
- Be direct: state what the owner should do and how soon
- To send the reply as several consecutive chat bubbles, separate the parts with ` + SplitDelimiter + `
- Do not use ` + SplitDelimiter + ` for any other purpose`

// Context is everything the generator knows about the conversation.
type Context struct {
	Profile        domain.AnimalProfile
	Symptoms       domain.SymptomSet
	CurrentUrgency domain.UrgencyLevel
	ImageResults   []domain.AnalysisResult
	RecentTurns    []domain.Turn
}

// BuildContext serialises c into the CONVERSATION CONTEXT block.
func BuildContext(c Context) string {
	var b strings.Builder
	b.WriteString("CONVERSATION CONTEXT:\n")

	p := c.Profile
	if p.Species != "" || p.Breed != "" || p.AgeYears != nil || p.WeightKg != nil {
		b.WriteString("Animal Information:\n")
		if p.Species != "" {
			fmt.Fprintf(&b, "- Type: %s\n", p.Species)
		}
		if p.Breed != "" {
			fmt.Fprintf(&b, "- Breed: %s\n", p.Breed)
		}
		if p.AgeYears != nil {
			fmt.Fprintf(&b, "- Age: %d years\n", *p.AgeYears)
		}
		if p.WeightKg != nil {
			fmt.Fprintf(&b, "- Weight: %.2f kg\n", *p.WeightKg)
		}
	}

	if len(c.Symptoms) > 0 {
		b.WriteString("\nIdentified Symptoms:\n")
		for _, s := range c.Symptoms {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	fmt.Fprintf(&b, "\nCurrent Urgency Level: %s\n", c.CurrentUrgency.DisplayName())

	if len(c.ImageResults) > 0 {
		writeImageResults(&b, c.ImageResults)
	}

	if len(c.RecentTurns) > 0 {
		b.WriteString("\nRecent Conversation:\n")
		for _, t := range c.RecentTurns {
			role := "Vet Assistant"
			if t.Actor == domain.ActorUser {
				role = "Owner"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, t.Content)
		}
	}
	return b.String()
}

func writeImageResults(b *strings.Builder, results []domain.AnalysisResult) {
	b.WriteString("\nIMAGE ANALYSIS RESULTS:\n")
	fmt.Fprintf(b, "I have analyzed %d image(s) of the animal. Here are the findings:\n\n", len(results))

	for i, r := range results {
		fmt.Fprintf(b, "IMAGE %d ANALYSIS:\n", i+1)
		fmt.Fprintf(b, "Overall Assessment: %s\n", r.Condition)
		fmt.Fprintf(b, "Confidence Level: %.1f%%\n", r.Confidence*100)
		fmt.Fprintf(b, "Urgency Level: %s\n", r.Urgency.DisplayName())
		if len(r.Symptoms) > 0 {
			fmt.Fprintf(b, "Observed Symptoms: %s\n", strings.Join(r.Symptoms, ", "))
		}
		if d := strings.TrimSpace(r.Description); d != "" {
			fmt.Fprintf(b, "Detailed Findings: %s\n", d)
		}
		b.WriteString("\n")
	}

	b.WriteString("SUMMARY OF VISUAL FINDINGS:\n")
	switch domain.MaxImageUrgency(results) {
	case domain.UrgencyCritical:
		b.WriteString("CRITICAL: Image analysis reveals urgent concerns requiring immediate attention.\n")
	case domain.UrgencyHigh:
		b.WriteString("URGENT: Image analysis shows concerning findings that need prompt evaluation.\n")
	default:
		b.WriteString("Image analysis did not detect any urgent visual concerns.\n")
	}
}

// FullPrompt joins the system prompt, context block and owner message.
func FullPrompt(message string, c Context) string {
	return SystemPrompt + "\n\n" + BuildContext(c) + "\n\nUser: " + message
}
