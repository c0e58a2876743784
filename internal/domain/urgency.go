// Package domain contains core domain types for the triage engine.
package domain

import (
	"fmt"
	"strings"
)

// UrgencyLevel is the totally ordered triage verdict.
type UrgencyLevel int

const (
	UrgencyLow UrgencyLevel = iota
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

var urgencyNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

var urgencyDisplay = [...]struct {
	name           string
	color          string
	recommendation string
}{
	{"Low", "#4CAF50", "Monitor and schedule routine visit if symptoms persist"},
	{"Medium", "#FF9800", "Schedule veterinary visit within 24-48 hours"},
	{"High", "#F44336", "Seek veterinary attention within 2-6 hours"},
	{"Critical", "#D32F2F", "Seek immediate emergency veterinary care"},
}

// ParseUrgency parses a level name case-insensitively.
func ParseUrgency(s string) (UrgencyLevel, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range urgencyNames {
		if name == s {
			return UrgencyLevel(i), true
		}
	}
	return UrgencyLow, false
}

// Valid reports whether u is one of the four defined levels.
func (u UrgencyLevel) Valid() bool {
	return u >= UrgencyLow && u <= UrgencyCritical
}

func (u UrgencyLevel) String() string {
	if !u.Valid() {
		return fmt.Sprintf("UrgencyLevel(%d)", int(u))
	}
	return urgencyNames[u]
}

// DisplayName returns the human label ("Low", "High", ...).
func (u UrgencyLevel) DisplayName() string {
	if !u.Valid() {
		return "Unknown"
	}
	return urgencyDisplay[u].name
}

// Color returns the hex colour used by clients to badge the level.
func (u UrgencyLevel) Color() string {
	if !u.Valid() {
		return ""
	}
	return urgencyDisplay[u].color
}

// Recommendation returns the baseline care advice for the level.
func (u UrgencyLevel) Recommendation() string {
	if !u.Valid() {
		return ""
	}
	return urgencyDisplay[u].recommendation
}

// IsEmergency is true for HIGH and CRITICAL.
func (u UrgencyLevel) IsEmergency() bool {
	return u >= UrgencyHigh
}

// MaxUrgency returns the highest of the given levels, LOW when none are given.
func MaxUrgency(levels ...UrgencyLevel) UrgencyLevel {
	out := UrgencyLow
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}

// MarshalText encodes the level as its upper-case name.
func (u UrgencyLevel) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("invalid urgency level %d", int(u))
	}
	return []byte(urgencyNames[u]), nil
}

// UnmarshalText decodes an upper- or lower-case level name.
func (u *UrgencyLevel) UnmarshalText(b []byte) error {
	lvl, ok := ParseUrgency(string(b))
	if !ok {
		return fmt.Errorf("unknown urgency level %q", string(b))
	}
	*u = lvl
	return nil
}
