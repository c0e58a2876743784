// Package triage turns owner text and image verdicts into profile signals and an urgency level.
package triage

import (
	"math"
	"strconv"
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
)

const poundsToKg = 0.453592

// Extract runs every detector over text. It is pure and never fails.
func Extract(text string) domain.Signals {
	lower := normalize(text)
	return domain.Signals{
		Species:  detectSpecies(lower),
		Breed:    detectBreed(lower),
		AgeYears: extractAge(lower),
		WeightKg: extractWeight(lower),
		Symptoms: extractSymptoms(lower),
	}
}

// DetectSpecies returns the canonical species or "".
func DetectSpecies(text string) string { return detectSpecies(normalize(text)) }

// DetectBreed returns the canonical breed, "mixed breed", or "".
func DetectBreed(text string) string { return detectBreed(normalize(text)) }

// ExtractAge returns the age in whole years, or nil.
func ExtractAge(text string) *int { return extractAge(normalize(text)) }

// ExtractWeight returns the weight in kilograms rounded to 2 decimals, or nil.
func ExtractWeight(text string) *float64 { return extractWeight(normalize(text)) }

// ExtractSymptoms returns the canonical symptoms mentioned in text.
func ExtractSymptoms(text string) domain.SymptomSet { return extractSymptoms(normalize(text)) }

// BreedSize returns the size or coat bucket for a canonical breed.
func BreedSize(breed string) string {
	for _, bucket := range breedTable {
		for _, b := range bucket.breeds {
			if b == breed {
				return bucket.size
			}
		}
	}
	return ""
}

func normalize(text string) string {
	text = strings.ToLower(text)
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

func detectSpecies(lower string) string {
	for _, g := range speciesTable {
		if containsAny(lower, g.keywords) {
			return g.canonical
		}
	}
	return ""
}

func detectBreed(lower string) string {
	for _, bucket := range breedTable {
		for _, b := range bucket.breeds {
			if strings.Contains(lower, b) {
				return b
			}
		}
	}
	if containsAny(lower, mixedKeywords) {
		return mixedBreed
	}
	return ""
}

func extractAge(lower string) *int {
	if m := ageRe.FindStringSubmatch(lower); m != nil {
		if years, ok := ageFromGroups(m); ok {
			return &years
		}
	}
	for _, ls := range lifeStages {
		if ls.re.MatchString(lower) {
			v := ls.value
			return &v
		}
	}
	return nil
}

// ageFromGroups normalises by which alternative matched: 1 years-old,
// 2 months, 3 weeks, 4 "age n", 5 bare years.
func ageFromGroups(m []string) (int, bool) {
	for group := 1; group < len(m); group++ {
		if m[group] == "" {
			continue
		}
		n, err := strconv.Atoi(m[group])
		if err != nil {
			return 0, false
		}
		switch group {
		case 2:
			if n < 12 {
				return 0, true
			}
			return n / 12, true
		case 3:
			if n < 52 {
				return 0, true
			}
			return n / 52, true
		default:
			return n, true
		}
	}
	return 0, false
}

func extractWeight(lower string) *float64 {
	if m := weightRe.FindStringSubmatch(lower); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if strings.HasPrefix(m[2], "lb") || strings.HasPrefix(m[2], "pound") {
				v *= poundsToKg
			}
			kg := roundHalfUp(v, 2)
			return &kg
		}
	}
	for _, sd := range sizeDescriptors {
		if sd.re.MatchString(lower) {
			v := sd.value
			return &v
		}
	}
	return nil
}

func extractSymptoms(lower string) domain.SymptomSet {
	out := domain.SymptomSet{}
	for _, s := range symptomTable {
		if strings.Contains(lower, s.keyword) {
			out = out.Add(s.canonical)
		}
	}
	return out
}

func roundHalfUp(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	// The epsilon absorbs binary representation error (x.xx5 stored as x.xx4999...).
	return math.Floor(v*scale+0.5+1e-9) / scale
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
