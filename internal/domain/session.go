package domain

import "time"

// Actor identifies who produced a turn.
type Actor string

const (
	ActorUser Actor = "USER"
	ActorBot  Actor = "BOT"
)

// SessionState is the lifecycle position of a conversation.
type SessionState string

const (
	StateAwaitingTurn SessionState = "AWAITING_TURN"
	StateClosed       SessionState = "CLOSED"
)

// Turn is one immutable exchange unit.
type Turn struct {
	Actor         Actor         `json:"actor"`
	Content       string        `json:"content"`
	Timestamp     time.Time     `json:"timestamp"`
	ImageRefs     []string      `json:"image_refs,omitempty"`
	UrgencyAtTime *UrgencyLevel `json:"urgency_at_time,omitempty"`
}

// Session is the durable per-conversation state.
type Session struct {
	ID             string        `json:"id"`
	State          SessionState  `json:"state"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	CurrentUrgency UrgencyLevel  `json:"current_urgency"`
	Profile        AnimalProfile `json:"profile"`
	Turns          []Turn        `json:"turns,omitempty"`
}

// IsIdle reports whether the session has seen no activity since cutoff.
func (s *Session) IsIdle(cutoff time.Time) bool {
	return s.LastActivityAt.Before(cutoff)
}

// RecentTurns returns the last n turns.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 {
		return nil
	}
	if n >= len(s.Turns) {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}
