package domain

import (
	"fmt"
	"strings"
)

// SymptomSet keeps insertion order for display and set semantics for membership.
type SymptomSet []string

// Contains reports whether s is already in the set.
func (ss SymptomSet) Contains(s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Add returns the set with any new symptoms appended in order.
func (ss SymptomSet) Add(symptoms ...string) SymptomSet {
	for _, s := range symptoms {
		if s == "" || ss.Contains(s) {
			continue
		}
		ss = append(ss, s)
	}
	return ss
}

// Signals is what the text extractor found in a single message.
type Signals struct {
	Species  string     `json:"species,omitempty"`
	Breed    string     `json:"breed,omitempty"`
	AgeYears *int       `json:"age_years,omitempty"`
	WeightKg *float64   `json:"weight_kg,omitempty"`
	Symptoms SymptomSet `json:"symptoms"`
}

// AnimalProfile is the per-session picture of the pet.
// Empty strings and nil pointers mean "not known yet".
type AnimalProfile struct {
	Species  string     `json:"species,omitempty"`
	Breed    string     `json:"breed,omitempty"`
	AgeYears *int       `json:"age_years,omitempty"`
	WeightKg *float64   `json:"weight_kg,omitempty"`
	Symptoms SymptomSet `json:"symptoms"`
}

// ProfilePatch is an explicit overwrite; nil fields are left untouched.
type ProfilePatch struct {
	Species  *string  `json:"species,omitempty"`
	Breed    *string  `json:"breed,omitempty"`
	AgeYears *int     `json:"age_years,omitempty"`
	WeightKg *float64 `json:"weight_kg,omitempty"`
	Symptoms []string `json:"symptoms,omitempty"`
}

// Clone returns a deep copy.
func (p AnimalProfile) Clone() AnimalProfile {
	out := p
	if p.AgeYears != nil {
		age := *p.AgeYears
		out.AgeYears = &age
	}
	if p.WeightKg != nil {
		w := *p.WeightKg
		out.WeightKg = &w
	}
	out.Symptoms = append(SymptomSet(nil), p.Symptoms...)
	return out
}

// MergeSignals fills only the fields that are still unknown and unions symptoms.
// Known fields are never overwritten.
func (p AnimalProfile) MergeSignals(s Signals) AnimalProfile {
	out := p.Clone()
	if out.Species == "" {
		out.Species = s.Species
	}
	if out.Breed == "" {
		out.Breed = s.Breed
	}
	if out.AgeYears == nil && s.AgeYears != nil {
		age := *s.AgeYears
		out.AgeYears = &age
	}
	if out.WeightKg == nil && s.WeightKg != nil {
		w := *s.WeightKg
		out.WeightKg = &w
	}
	out.Symptoms = out.Symptoms.Add(s.Symptoms...)
	return out
}

// Apply overwrites every non-nil field of the patch.
func (p AnimalProfile) Apply(patch ProfilePatch) AnimalProfile {
	out := p.Clone()
	if patch.Species != nil {
		out.Species = strings.ToLower(strings.TrimSpace(*patch.Species))
	}
	if patch.Breed != nil {
		out.Breed = strings.ToLower(strings.TrimSpace(*patch.Breed))
	}
	if patch.AgeYears != nil {
		age := *patch.AgeYears
		out.AgeYears = &age
	}
	if patch.WeightKg != nil {
		w := *patch.WeightKg
		out.WeightKg = &w
	}
	if patch.Symptoms != nil {
		out.Symptoms = SymptomSet(nil).Add(patch.Symptoms...)
	}
	return out
}

// IsComplete reports whether species and age are both known.
func (p AnimalProfile) IsComplete() bool {
	return p.Species != "" && p.AgeYears != nil
}

// MissingFields lists the profile fields the owner has not mentioned yet.
func (p AnimalProfile) MissingFields() []string {
	var missing []string
	if p.Species == "" {
		missing = append(missing, "Animal type (dog, cat, etc.)")
	}
	if p.Breed == "" {
		missing = append(missing, "Breed")
	}
	if p.AgeYears == nil {
		missing = append(missing, "Age")
	}
	if p.WeightKg == nil {
		missing = append(missing, "Weight")
	}
	return missing
}

// Summary renders a one-line description of the profile.
func (p AnimalProfile) Summary() string {
	if p.Species == "" && p.Breed == "" && p.AgeYears == nil && p.WeightKg == nil && len(p.Symptoms) == 0 {
		return "No pet information available yet."
	}

	var b strings.Builder
	b.WriteString("Pet Profile: ")
	if p.Species != "" {
		b.WriteString(p.Species)
	} else {
		b.WriteString("unknown animal")
	}
	if p.Breed != "" {
		fmt.Fprintf(&b, " (%s)", p.Breed)
	}
	if p.AgeYears != nil {
		fmt.Fprintf(&b, ", %d years old", *p.AgeYears)
	}
	if p.WeightKg != nil {
		fmt.Fprintf(&b, ", %.2f kg", *p.WeightKg)
	}
	b.WriteString(".")
	if len(p.Symptoms) > 0 {
		fmt.Fprintf(&b, " Current symptoms: %s.", strings.Join(p.Symptoms, ", "))
	}
	return b.String()
}
