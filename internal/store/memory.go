package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
)

// MemoryStore is an in-process ProfileStore used by tests and the CLI.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{sessions: make(map[string]*domain.Session), now: o.now}
}

func (m *MemoryStore) GetOrCreate(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		s = newSession(id, m.now())
		m.sessions[id] = s
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) AppendTurn(_ context.Context, id string, turn domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.open(id)
	if err != nil {
		return err
	}
	appendTurn(s, turn)
	return nil
}

func (m *MemoryStore) CommitTurn(_ context.Context, id string, c TurnCommit) (domain.AnimalProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.open(id)
	if err != nil {
		return domain.AnimalProfile{}, err
	}
	if c.Merge != nil {
		s.Profile = c.Merge(s.Profile.Clone()).Clone()
	}
	s.CurrentUrgency = domain.MaxUrgency(s.CurrentUrgency, c.Urgency)
	for _, t := range c.Turns {
		appendTurn(s, t)
	}
	return s.Profile.Clone(), nil
}

func (m *MemoryStore) UpdateProfile(_ context.Context, id string, merge func(domain.AnimalProfile) domain.AnimalProfile) (domain.AnimalProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.open(id)
	if err != nil {
		return domain.AnimalProfile{}, err
	}
	s.Profile = merge(s.Profile.Clone()).Clone()
	return s.Profile.Clone(), nil
}

func (m *MemoryStore) UpdateUrgency(_ context.Context, id string, level domain.UrgencyLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.open(id)
	if err != nil {
		return err
	}
	s.CurrentUrgency = domain.MaxUrgency(s.CurrentUrgency, level)
	return nil
}

func (m *MemoryStore) RecentTurns(_ context.Context, id string, n int) ([]domain.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	recent := s.RecentTurns(n)
	out := make([]domain.Turn, len(recent))
	for i, t := range recent {
		out[i] = cloneTurn(t)
	}
	return out, nil
}

func (m *MemoryStore) IdleBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, s := range m.sessions {
		if s.State != domain.StateClosed && s.IsIdle(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryStore) CloseIdle(_ context.Context, id string, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.State == domain.StateClosed || !s.IsIdle(cutoff) {
		return false, nil
	}
	closeSession(s)
	return true, nil
}

func (m *MemoryStore) DeleteIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := m.IdleBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	var closed []string
	for _, id := range ids {
		ok, err := m.CloseIdle(ctx, id, cutoff)
		if err != nil {
			return closed, err
		}
		if ok {
			closed = append(closed, id)
		}
	}
	return closed, nil
}

func (m *MemoryStore) PurgeClosedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.State == domain.StateClosed && s.IsIdle(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// open returns the live session for mutation. Caller holds m.mu.
func (m *MemoryStore) open(id string) (*domain.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.State == domain.StateClosed {
		return nil, domain.ErrSessionClosed
	}
	return s, nil
}

func appendTurn(s *domain.Session, turn domain.Turn) {
	var last time.Time
	if n := len(s.Turns); n > 0 {
		last = s.Turns[n-1].Timestamp
	}
	turn = cloneTurn(turn)
	turn.Timestamp = nextTimestamp(turn.Timestamp, last)
	s.Turns = append(s.Turns, turn)
	if turn.Timestamp.After(s.LastActivityAt) {
		s.LastActivityAt = turn.Timestamp
	}
}

func closeSession(s *domain.Session) {
	s.State = domain.StateClosed
	s.Turns = nil
	s.Profile = domain.AnimalProfile{Symptoms: domain.SymptomSet{}}
}

func cloneSession(s *domain.Session) *domain.Session {
	out := *s
	out.Profile = s.Profile.Clone()
	out.Turns = make([]domain.Turn, len(s.Turns))
	for i, t := range s.Turns {
		out.Turns[i] = cloneTurn(t)
	}
	return &out
}
