// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
)

// ProfileStore persists sessions, their animal profile and turn history.
//
// Mutating calls on an unknown id return domain.ErrSessionNotFound and on a
// closed session domain.ErrSessionClosed. Returned values are fully
// materialized copies; callers may modify them freely.
type ProfileStore interface {
	// GetOrCreate returns the session, creating an empty one if id is unknown.
	GetOrCreate(ctx context.Context, id string) (*domain.Session, error)

	// Get returns the session with all turns, or nil if it does not exist.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// AppendTurn appends a turn and bumps the session's last activity.
	// Timestamps are adjusted so they strictly increase within a session.
	AppendTurn(ctx context.Context, id string, turn domain.Turn) error

	// UpdateProfile applies merge to the stored profile atomically.
	UpdateProfile(ctx context.Context, id string, merge func(domain.AnimalProfile) domain.AnimalProfile) (domain.AnimalProfile, error)

	// UpdateUrgency raises the stored urgency. A lower level is ignored.
	UpdateUrgency(ctx context.Context, id string, level domain.UrgencyLevel) error

	// CommitTurn applies a whole conversation turn atomically: the profile
	// merge, the urgency raise and the turns. Nothing is written on error.
	CommitTurn(ctx context.Context, id string, c TurnCommit) (domain.AnimalProfile, error)

	// RecentTurns returns up to n most recent turns, oldest first.
	RecentTurns(ctx context.Context, id string, n int) ([]domain.Turn, error)

	// IdleBefore lists open sessions whose last activity is before cutoff.
	IdleBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// CloseIdle closes one session if it is still idle at cutoff, discarding
	// its turns and profile. It reports whether the session was closed.
	CloseIdle(ctx context.Context, id string, cutoff time.Time) (bool, error)

	// DeleteIdleBefore closes every session idle since cutoff and returns their ids.
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// PurgeClosedBefore removes closed sessions last active before cutoff.
	PurgeClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// TurnCommit is the set of writes one processed turn produces.
type TurnCommit struct {
	// Merge folds the turn's signals into the stored profile. Nil keeps it.
	Merge   func(domain.AnimalProfile) domain.AnimalProfile
	Urgency domain.UrgencyLevel
	Turns   []domain.Turn
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for creation and activity stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// nextTimestamp keeps turn timestamps strictly increasing at millisecond precision.
func nextTimestamp(ts, last time.Time) time.Time {
	ts = ts.Truncate(time.Millisecond)
	if !last.IsZero() && !ts.After(last) {
		return last.Add(time.Millisecond)
	}
	return ts
}

func newSession(id string, now time.Time) *domain.Session {
	now = now.Truncate(time.Millisecond)
	return &domain.Session{
		ID:             id,
		State:          domain.StateAwaitingTurn,
		CreatedAt:      now,
		LastActivityAt: now,
		CurrentUrgency: domain.UrgencyLow,
		Profile:        domain.AnimalProfile{Symptoms: domain.SymptomSet{}},
	}
}

func cloneTurn(t domain.Turn) domain.Turn {
	out := t
	out.ImageRefs = append([]string(nil), t.ImageRefs...)
	if t.UrgencyAtTime != nil {
		u := *t.UrgencyAtTime
		out.UrgencyAtTime = &u
	}
	return out
}
