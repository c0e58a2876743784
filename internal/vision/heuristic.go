package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
)

// Heuristic is the local last resort. It never returns an error.
type Heuristic struct{}

// Name implements Provider.
func (Heuristic) Name() string { return domain.SourceHeuristic }

// Analyze implements Provider.
func (h Heuristic) Analyze(_ context.Context, image []byte) (domain.AnalysisResult, error) {
	return h.Assess(image), nil
}

// Assess inspects the image header and returns a low-confidence generic result.
func (Heuristic) Assess(image []byte) domain.AnalysisResult {
	info, err := Inspect(image)
	if err != nil {
		return Unavailable(fmt.Sprintf("image could not be decoded (%v)", err))
	}
	return domain.AnalysisResult{
		Condition:  "Image received - veterinary consultation recommended",
		Confidence: 0.3,
		Urgency:    domain.UrgencyLow,
		Symptoms:   domain.SymptomSet{"Image uploaded for assessment"},
		Description: fmt.Sprintf("Basic Image Processing Report\n\n"+
			"IMAGE DETAILS:\n"+
			"• Resolution: %d x %d pixels\n"+
			"• File size: %.1f KB\n"+
			"• Format: %s\n\n"+
			"STATUS: Image successfully processed but AI health analysis is currently unavailable.\n\n"+
			"NEXT STEPS:\n"+
			"• Describe any symptoms or concerns you've observed\n"+
			"• Note any changes in your pet's behavior\n"+
			"• Consider scheduling a veterinary consultation\n\n"+
			"The system can provide better guidance with symptom descriptions.",
			info.Width, info.Height, float64(info.Bytes)/1024.0, strings.ToUpper(info.Format)),
		Source: domain.SourceHeuristic,
	}
}

// Unavailable is the zero-confidence result used when nothing could read the image.
func Unavailable(reason string) domain.AnalysisResult {
	return domain.AnalysisResult{
		Condition:  "Image analysis unavailable",
		Confidence: 0.0,
		Urgency:    domain.UrgencyLow,
		Symptoms:   domain.SymptomSet{},
		Description: "Image Analysis Error\n\n" +
			"Unable to perform automated analysis: " + reason + "\n\n" +
			"ALTERNATIVE APPROACH:\n" +
			"• Describe your pet's symptoms in text\n" +
			"• Note any behavioral changes\n" +
			"• Contact your veterinarian for guidance\n\n" +
			"The AI can still provide veterinary guidance based on symptom descriptions.",
		Source: domain.SourceHeuristic,
	}
}
