package chat

import (
	"fmt"
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/triage"
)

const emergencyReply = "**Emergency Detected**\n\n" +
	"Based on what you've described, this sounds like it could be a serious emergency. " +
	"Please contact your veterinarian immediately or visit the nearest emergency animal clinic. " +
	"Time is critical in these situations.\n\n" +
	"If you need help finding an emergency clinic, I can assist with that."

const vomitingReply = "**Vomiting Assessment**\n\n" +
	"Vomiting can have many causes in pets. Here's what I recommend:\n\n" +
	"1. Withhold food for 12 hours but provide small amounts of water\n" +
	"2. Monitor for other symptoms like lethargy, blood, or continued vomiting\n" +
	"3. Contact your vet if vomiting continues or worsens\n\n" +
	"Can you tell me how long this has been going on and if you've noticed any other symptoms?"

const limpingReply = "**Limping Evaluation**\n\n" +
	"Limping can indicate injury or pain. Here's what to do:\n\n" +
	"1. Keep your pet calm and limit their movement\n" +
	"2. Gently check the affected leg for obvious injuries or swelling\n" +
	"3. Look for foreign objects in paw pads\n" +
	"4. Apply ice if there's visible swelling\n\n" +
	"If the limping is severe or doesn't improve within 24 hours, veterinary examination is recommended. " +
	"How long has your pet been limping?"

const appetiteReply = "**Appetite Changes**\n\n" +
	"Changes in appetite can indicate various health issues. Please monitor for:\n\n" +
	"1. Other symptoms like vomiting, diarrhea, or lethargy\n" +
	"2. Behavioral changes\n" +
	"3. Changes in drinking habits\n" +
	"4. Any signs of pain or discomfort\n\n" +
	"If your pet hasn't eaten for more than 24 hours, please consult with your veterinarian. " +
	"How long has this been going on?"

const genericFollowUp = " To provide you with the best guidance, could you please tell me more about the specific symptoms you've observed?\n\n" +
	"**Helpful details include:**\n\n" +
	"1. When the symptoms started\n" +
	"2. How severe they appear\n" +
	"3. Changes in behavior, eating, or bathroom habits\n" +
	"4. Any recent changes in routine or environment\n\n" +
	"This information will help me give you more targeted advice."

// Fallback is the rule-based reply used when no provider answered.
func Fallback(message string, c Context) string {
	lower := strings.ToLower(message)

	if triage.HasCriticalKeyword(message) {
		return emergencyReply
	}
	if reply, ok := concerningImagesReply(c.ImageResults); ok {
		return reply
	}

	switch {
	case strings.Contains(lower, "vomiting"):
		return vomitingReply
	case strings.Contains(lower, "limping") || strings.Contains(lower, "leg"):
		return limpingReply
	case strings.Contains(lower, "eating") || strings.Contains(lower, "appetite"):
		return appetiteReply
	}

	reply := "Thank you for sharing your concerns about your pet."
	if n := len(c.ImageResults); n > 0 {
		reply += fmt.Sprintf(" I've received %d image(s) that will help with the assessment.", n)
	}
	return reply + genericFollowUp
}

func concerningImagesReply(results []domain.AnalysisResult) (string, bool) {
	highest := domain.MaxImageUrgency(results)
	if !highest.IsEmergency() {
		return "", false
	}

	var b strings.Builder
	b.WriteString("**Image Analysis Results**\n\n")
	fmt.Fprintf(&b, "I've analyzed %d image(s) you shared. Some concerning signs were detected:\n\n", len(results))
	for i, r := range results {
		if r.IsConcerning() {
			fmt.Fprintf(&b, "Image %d: %s\n", i+1, r.Description)
		}
	}
	b.WriteString("\nI recommend contacting your veterinarian as soon as possible for proper evaluation and treatment. ")
	fmt.Fprintf(&b, "The overall urgency level appears to be **%s**.", highest.DisplayName())
	return b.String(), true
}
