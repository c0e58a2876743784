package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/vetcheck/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock) ProfileStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(_ *testing.T, clock *fakeClock) ProfileStore {
			return NewMemory(WithClock(clock.Now))
		},
		"sqlite": func(t *testing.T, clock *fakeClock) ProfileStore {
			path := filepath.Join(t.TempDir(), "data", "vetcheck.db")
			s, err := NewSQLite(context.Background(), path, WithClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s ProfileStore, clock *fakeClock)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			fn(t, factory(t, clock), clock)
		})
	}
}

func urgencyPtr(u domain.UrgencyLevel) *domain.UrgencyLevel { return &u }

func TestGetOrCreate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()

		missing, err := s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Nil(t, missing)

		sess, err := s.GetOrCreate(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", sess.ID)
		assert.Equal(t, domain.StateAwaitingTurn, sess.State)
		assert.Equal(t, domain.UrgencyLow, sess.CurrentUrgency)
		assert.True(t, sess.CreatedAt.Equal(clock.Now()))
		assert.Empty(t, sess.Turns)

		clock.Advance(time.Minute)
		again, err := s.GetOrCreate(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, again.CreatedAt.Equal(sess.CreatedAt), "second call must not recreate")
	})
}

func TestAppendTurnOrdering(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)

		ts := clock.Now().Add(time.Second)
		require.NoError(t, s.AppendTurn(ctx, "s1", domain.Turn{Actor: domain.ActorUser, Content: "hi", Timestamp: ts, ImageRefs: []string{"a.png", "b.png"}}))
		require.NoError(t, s.AppendTurn(ctx, "s1", domain.Turn{Actor: domain.ActorBot, Content: "hello", Timestamp: ts, UrgencyAtTime: urgencyPtr(domain.UrgencyMedium)}))

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, sess.Turns, 2)
		assert.Equal(t, []string{"a.png", "b.png"}, sess.Turns[0].ImageRefs)
		assert.Nil(t, sess.Turns[0].UrgencyAtTime)
		require.NotNil(t, sess.Turns[1].UrgencyAtTime)
		assert.Equal(t, domain.UrgencyMedium, *sess.Turns[1].UrgencyAtTime)
		assert.True(t, sess.Turns[1].Timestamp.After(sess.Turns[0].Timestamp), "timestamps strictly increase")
		assert.True(t, sess.LastActivityAt.Equal(sess.Turns[1].Timestamp))
	})
}

func TestRecentTurns(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)
		for _, c := range []string{"1", "2", "3", "4"} {
			clock.Advance(time.Second)
			require.NoError(t, s.AppendTurn(ctx, "s1", domain.Turn{Actor: domain.ActorUser, Content: c, Timestamp: clock.Now()}))
		}

		turns, err := s.RecentTurns(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "3", turns[0].Content)
		assert.Equal(t, "4", turns[1].Content)

		all, err := s.RecentTurns(ctx, "s1", 10)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		_, err = s.RecentTurns(ctx, "nope", 2)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestUpdateProfile(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, _ *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)

		age := 2
		got, err := s.UpdateProfile(ctx, "s1", func(p domain.AnimalProfile) domain.AnimalProfile {
			return p.MergeSignals(domain.Signals{Species: "dog", AgeYears: &age, Symptoms: domain.SymptomSet{"vomiting"}})
		})
		require.NoError(t, err)
		assert.Equal(t, "dog", got.Species)

		got, err = s.UpdateProfile(ctx, "s1", func(p domain.AnimalProfile) domain.AnimalProfile {
			return p.MergeSignals(domain.Signals{Species: "cat", Symptoms: domain.SymptomSet{"lethargy"}})
		})
		require.NoError(t, err)
		assert.Equal(t, "dog", got.Species)

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "dog", sess.Profile.Species)
		require.NotNil(t, sess.Profile.AgeYears)
		assert.Equal(t, 2, *sess.Profile.AgeYears)
		assert.Equal(t, domain.SymptomSet{"vomiting", "lethargy"}, sess.Profile.Symptoms)

		_, err = s.UpdateProfile(ctx, "missing", func(p domain.AnimalProfile) domain.AnimalProfile { return p })
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestUpdateUrgencyNeverLowers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, _ *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)

		require.NoError(t, s.UpdateUrgency(ctx, "s1", domain.UrgencyHigh))
		require.NoError(t, s.UpdateUrgency(ctx, "s1", domain.UrgencyLow))

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, domain.UrgencyHigh, sess.CurrentUrgency)

		assert.ErrorIs(t, s.UpdateUrgency(ctx, "missing", domain.UrgencyLow), domain.ErrSessionNotFound)
	})
}

func TestCommitTurn(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)
		require.NoError(t, s.UpdateUrgency(ctx, "s1", domain.UrgencyMedium))

		high := domain.UrgencyHigh
		now := clock.Now()
		got, err := s.CommitTurn(ctx, "s1", TurnCommit{
			Merge: func(p domain.AnimalProfile) domain.AnimalProfile {
				return p.MergeSignals(domain.Signals{Species: "cat", Symptoms: domain.SymptomSet{"vomiting"}})
			},
			Urgency: domain.UrgencyHigh,
			Turns: []domain.Turn{
				{Actor: domain.ActorUser, Content: "my cat is vomiting", Timestamp: now, ImageRefs: []string{"a.png"}},
				{Actor: domain.ActorBot, Content: "noted", Timestamp: now, UrgencyAtTime: &high},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "cat", got.Species)

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "cat", sess.Profile.Species)
		assert.Equal(t, domain.UrgencyHigh, sess.CurrentUrgency)
		require.Len(t, sess.Turns, 2)
		assert.Equal(t, domain.ActorUser, sess.Turns[0].Actor)
		assert.Equal(t, []string{"a.png"}, sess.Turns[0].ImageRefs)
		assert.Equal(t, domain.ActorBot, sess.Turns[1].Actor)
		assert.True(t, sess.Turns[1].Timestamp.After(sess.Turns[0].Timestamp))

		_, err = s.CommitTurn(ctx, "s1", TurnCommit{Urgency: domain.UrgencyLow})
		require.NoError(t, err)
		sess, err = s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, domain.UrgencyHigh, sess.CurrentUrgency)
		assert.Equal(t, "cat", sess.Profile.Species)

		_, err = s.CommitTurn(ctx, "missing", TurnCommit{Turns: []domain.Turn{{Actor: domain.ActorUser, Content: "x"}}})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestCommitTurnOnClosedSessionWritesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)
		clock.Advance(time.Hour)
		ok, err := s.CloseIdle(ctx, "s1", clock.Now())
		require.NoError(t, err)
		require.True(t, ok)

		_, err = s.CommitTurn(ctx, "s1", TurnCommit{
			Urgency: domain.UrgencyCritical,
			Turns:   []domain.Turn{{Actor: domain.ActorUser, Content: "x", Timestamp: clock.Now()}},
		})
		assert.ErrorIs(t, err, domain.ErrSessionClosed)

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, sess.Turns)
		assert.NotEqual(t, domain.UrgencyCritical, sess.CurrentUrgency)
	})
}

func TestIdleSweep(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "old")
		require.NoError(t, err)
		require.NoError(t, s.AppendTurn(ctx, "old", domain.Turn{Actor: domain.ActorUser, Content: "x", Timestamp: clock.Now()}))

		clock.Advance(time.Hour)
		_, err = s.GetOrCreate(ctx, "fresh")
		require.NoError(t, err)

		cutoff := clock.Now().Add(-30 * time.Minute)
		idle, err := s.IdleBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, []string{"old"}, idle)

		closed, err := s.DeleteIdleBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, []string{"old"}, closed)

		sess, err := s.Get(ctx, "old")
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, domain.StateClosed, sess.State)
		assert.Empty(t, sess.Turns)

		err = s.AppendTurn(ctx, "old", domain.Turn{Actor: domain.ActorUser, Content: "y", Timestamp: clock.Now()})
		assert.ErrorIs(t, err, domain.ErrSessionClosed)

		again, err := s.DeleteIdleBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Empty(t, again)

		n, err := s.PurgeClosedBefore(ctx, clock.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		gone, err := s.Get(ctx, "old")
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}

func TestCloseIdleSkipsActiveSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)

		cutoff := clock.Now().Add(time.Minute)
		clock.Advance(2 * time.Minute)
		require.NoError(t, s.AppendTurn(ctx, "s1", domain.Turn{Actor: domain.ActorUser, Content: "still here", Timestamp: clock.Now()}))

		ok, err := s.CloseIdle(ctx, "s1", cutoff)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGetReturnsCopies(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)
		require.NoError(t, s.AppendTurn(ctx, "s1", domain.Turn{Actor: domain.ActorUser, Content: "a", Timestamp: clock.Now()}))

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		sess.Turns[0].Content = "mutated"
		sess.Profile.Symptoms = append(sess.Profile.Symptoms, "x")

		again, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "a", again.Turns[0].Content)
		assert.Empty(t, again.Profile.Symptoms)
	})
}

func TestConcurrentAppends(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s ProfileStore, clock *fakeClock) {
		ctx := context.Background()
		_, err := s.GetOrCreate(ctx, "s1")
		require.NoError(t, err)

		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.AppendTurn(ctx, "s1", domain.Turn{Actor: domain.ActorUser, Content: "m", Timestamp: clock.Now()})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		sess, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, sess.Turns, n)
		for i := 1; i < n; i++ {
			assert.True(t, sess.Turns[i].Timestamp.After(sess.Turns[i-1].Timestamp))
		}
	})
}

func TestRebind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SELECT a FROM t WHERE x = ? AND y = ?", sqliteDialect.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", postgresDialect.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
}
