package triage

import (
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
)

// Classify combines the message tier, the highest image urgency and the
// prior session urgency. The result is never below prior.
func Classify(message string, images []domain.AnalysisResult, prior domain.UrgencyLevel) domain.UrgencyLevel {
	return domain.MaxUrgency(MessageTier(message), domain.MaxImageUrgency(images), prior)
}

// MessageTier scans the keyword tiers CRITICAL, HIGH, MEDIUM in order; no hit is LOW.
func MessageTier(message string) domain.UrgencyLevel {
	lower := normalize(message)
	switch {
	case containsAny(lower, criticalKeywords):
		return domain.UrgencyCritical
	case containsAny(lower, highKeywords):
		return domain.UrgencyHigh
	case containsAny(lower, mediumKeywords):
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

// HasCriticalKeyword reports whether message mentions any CRITICAL-tier phrase.
func HasCriticalKeyword(message string) bool {
	return containsAny(normalize(message), criticalKeywords)
}

// MatchedKeywords returns the tier keywords present in message, most urgent first.
func MatchedKeywords(message string) []string {
	lower := normalize(message)
	var out []string
	for _, tier := range [][]string{criticalKeywords, highKeywords, mediumKeywords} {
		for _, k := range tier {
			if strings.Contains(lower, k) {
				out = append(out, k)
			}
		}
	}
	return out
}
