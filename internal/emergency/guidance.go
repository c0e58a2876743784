package emergency

import (
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
)

const (
	Hotline              = "+1-555-PET-HELP"
	PoisonControlHotline = "1-888-426-4435"
)

var emergencySymptoms = []string{
	"not breathing", "difficulty breathing", "unconscious", "bleeding heavily",
	"convulsing", "seizure", "choking", "collapsed", "vomiting blood",
	"severe trauma", "hit by car", "poisoning", "won't wake up",
	"blue gums", "pale gums", "severe pain", "bloated abdomen",
}

var preparationTips = []string{
	"Keep your vet's emergency contact information easily accessible",
	"Know the location of the nearest 24/7 emergency animal hospital",
	"Keep a pet first aid kit with bandages, antiseptic, and thermometer",
	"Have your pet's medical records and medication list ready",
	"Keep a pet carrier or transport crate available",
	"Save the pet poison control hotline: " + PoisonControlHotline,
	"Know your pet's normal vital signs (temperature, heart rate)",
	"Keep emergency contact numbers for family members who can help",
}

// PreparationTips returns general emergency-readiness advice.
func PreparationTips() []string {
	return append([]string(nil), preparationTips...)
}

// IsEmergencyCase reports an emergency-tier urgency or any red-flag symptom.
func IsEmergencyCase(u domain.UrgencyLevel, symptoms []string) bool {
	if u.IsEmergency() {
		return true
	}
	for _, s := range symptoms {
		lower := strings.ToLower(s)
		for _, kw := range emergencySymptoms {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// Instructions returns first-response steps for the urgency, followed by
// symptom-specific advice.
func Instructions(u domain.UrgencyLevel, symptoms []string) []string {
	var out []string
	switch u {
	case domain.UrgencyCritical:
		out = append(out,
			"IMMEDIATE ACTION REQUIRED:",
			"Contact your nearest emergency vet clinic immediately",
			"If your pet is unconscious, ensure airways are clear",
			"Apply gentle pressure to bleeding wounds with clean cloth",
			"Keep your pet warm and calm during transport",
			"Have someone call ahead to the emergency clinic",
		)
	case domain.UrgencyHigh:
		out = append(out,
			"URGENT CARE NEEDED:",
			"Contact your veterinarian or emergency clinic within 2-6 hours",
			"Monitor your pet closely for any worsening symptoms",
			"Keep your pet comfortable and restrict activity",
			"Prepare to transport your pet if symptoms worsen",
		)
	}

	for _, s := range symptoms {
		lower := strings.ToLower(s)
		if strings.Contains(lower, "vomiting") {
			out = append(out, "Withhold food but provide small amounts of water")
		}
		if strings.Contains(lower, "bleeding") {
			out = append(out, "Apply gentle pressure to bleeding areas with clean cloth")
		}
		if strings.Contains(lower, "breathing") {
			out = append(out, "Ensure airways are clear and keep your pet calm")
		}
		if strings.Contains(lower, "seizure") {
			out = append(out, "Do not put anything in your pet's mouth during seizure")
		}
	}
	return out
}
