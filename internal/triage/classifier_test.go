package triage

import (
	"testing"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestMessageTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want domain.UrgencyLevel
	}{
		{"he had a seizure and is limping", domain.UrgencyCritical},
		{"she is not breathing", domain.UrgencyCritical},
		{"vomiting and lethargic", domain.UrgencyHigh},
		{"he won't eat anything", domain.UrgencyHigh},
		{"he is limping a bit", domain.UrgencyMedium},
		{"some eye discharge", domain.UrgencyMedium},
		{"just a checkup question", domain.UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageTier(tt.msg))
		})
	}
}

func TestClassifyTakesMaximum(t *testing.T) {
	t.Parallel()

	images := []domain.AnalysisResult{
		{Urgency: domain.UrgencyLow},
		{Urgency: domain.UrgencyHigh},
	}

	assert.Equal(t, domain.UrgencyHigh, Classify("limping", images, domain.UrgencyLow))
	assert.Equal(t, domain.UrgencyLow, Classify("fine", nil, domain.UrgencyLow))
	assert.Equal(t, domain.UrgencyCritical, Classify("fine", nil, domain.UrgencyCritical))
	assert.Equal(t, domain.UrgencyCritical, Classify("collapsed", images, domain.UrgencyMedium))
}

func TestClassifyIsMonotonicOverTurns(t *testing.T) {
	t.Parallel()

	msgs := []string{"limping", "seizure!", "he seems fine now", "just tired", ""}
	current := domain.UrgencyLow
	for _, m := range msgs {
		next := Classify(m, nil, current)
		assert.GreaterOrEqual(t, next, current, m)
		current = next
	}
	assert.Equal(t, domain.UrgencyCritical, current)
}

func TestTierListsAreDisjoint(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, tier := range [][]string{criticalKeywords, highKeywords, mediumKeywords} {
		for _, k := range tier {
			assert.False(t, seen[k], "duplicate keyword %q", k)
			seen[k] = true
		}
	}
}

func TestCriticalKeywordHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, HasCriticalKeyword("He COLLAPSED"))
	assert.False(t, HasCriticalKeyword("vomiting"))
	assert.Equal(t, []string{"seizure", "limping"}, MatchedKeywords("seizure then limping"))
}
