package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/shared"
)

// dialect captures the differences between the SQLite and Postgres backends.
type dialect struct {
	driver    string
	numbered  bool // $1-style placeholders
	oneWriter bool
	forUpdate string
	schema    []string
}

var sqliteDialect = dialect{
	driver:    "sqlite",
	oneWriter: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			current_urgency INTEGER NOT NULL DEFAULT 0,
			profile_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_activity_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(state, last_activity_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			actor TEXT NOT NULL,
			content TEXT NOT NULL,
			ts INTEGER NOT NULL,
			image_refs_json TEXT,
			urgency INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
	},
}

var postgresDialect = dialect{
	driver:    "pgx",
	numbered:  true,
	forUpdate: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			current_urgency INTEGER NOT NULL DEFAULT 0,
			profile_json TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			last_activity_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(state, last_activity_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			seq BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			actor TEXT NOT NULL,
			content TEXT NOT NULL,
			ts BIGINT NOT NULL,
			image_refs_json TEXT,
			urgency INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
	},
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements ProfileStore on database/sql.
type SQLStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes SQLite writers to avoid SQLITE_BUSY on upgrade
	d       dialect
	now     func() time.Time
	retry   shared.RetryPolicy
}

// Open picks the backend from the URL: postgres:// or postgresql:// DSNs use
// pgx, anything else is treated as a SQLite file path.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*SQLStore, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return openSQL(ctx, postgresDialect, databaseURL, opts)
	}
	return NewSQLite(ctx, databaseURL, opts...)
}

// NewSQLite creates a SQLite-backed store, creating the parent directory.
func NewSQLite(ctx context.Context, dbPath string, opts ...Option) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	// WAL for concurrent readers during turn writes.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	return openSQL(ctx, sqliteDialect, dsn, opts)
}

func openSQL(ctx context.Context, d dialect, dsn string, opts []Option) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	o := buildOptions(opts)
	s := &SQLStore{db: db, d: d, now: o.now, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetOrCreate returns the session, inserting an empty one when missing.
func (s *SQLStore) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	fresh := newSession(id, s.now())
	profileJSON, err := json.Marshal(fresh.Profile)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}

	query := s.d.rebind(`
		INSERT INTO sessions (id, state, current_urgency, profile_json, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	err = shared.WithRetry(ctx, "create session", s.retry, func() error {
		defer s.lockWrites()()
		_, execErr := s.db.ExecContext(ctx, query,
			fresh.ID, string(fresh.State), int(fresh.CurrentUrgency), string(profileJSON),
			fresh.CreatedAt.UnixMilli(), fresh.LastActivityAt.UnixMilli(),
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("create session: %w", domain.ErrSessionNotFound)
	}
	return sess, nil
}

// Get retrieves a session and all of its turns.
func (s *SQLStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.getSession(ctx, s.db, id, "")
	if err != nil || sess == nil {
		return sess, err
	}

	turns, err := s.queryTurns(ctx, s.d.rebind(`
		SELECT actor, content, ts, image_refs_json, urgency
		FROM turns WHERE session_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	return sess, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) getSession(ctx context.Context, q queryer, id, suffix string) (*domain.Session, error) {
	query := s.d.rebind(`
		SELECT id, state, current_urgency, profile_json, created_at, last_activity_at
		FROM sessions WHERE id = ?` + suffix)

	var (
		sess                      domain.Session
		state, profileJSON        string
		urgency                   int
		createdAt, lastActivityAt int64
	)
	err := q.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &state, &urgency, &profileJSON, &createdAt, &lastActivityAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.State = domain.SessionState(state)
	sess.CurrentUrgency = domain.UrgencyLevel(urgency)
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.LastActivityAt = time.UnixMilli(lastActivityAt)
	if err := json.Unmarshal([]byte(profileJSON), &sess.Profile); err != nil {
		return nil, domain.Internal("decode profile", err)
	}
	if sess.Profile.Symptoms == nil {
		sess.Profile.Symptoms = domain.SymptomSet{}
	}
	return &sess, nil
}

// AppendTurn inserts a turn and bumps last_activity_at in one transaction.
func (s *SQLStore) AppendTurn(ctx context.Context, id string, turn domain.Turn) error {
	return shared.WithRetry(ctx, "append turn", s.retry, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := s.openForWrite(ctx, tx, id); err != nil {
				return err
			}
			return s.insertTurn(ctx, tx, id, turn)
		})
	})
}

// CommitTurn writes profile, urgency and turns in one transaction.
func (s *SQLStore) CommitTurn(ctx context.Context, id string, c TurnCommit) (domain.AnimalProfile, error) {
	var merged domain.AnimalProfile
	err := shared.WithRetry(ctx, "commit turn", s.retry, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			sess, err := s.openForWrite(ctx, tx, id)
			if err != nil {
				return err
			}
			merged = sess.Profile.Clone()
			if c.Merge != nil {
				merged = c.Merge(merged)
			}
			b, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("encode profile: %w", err)
			}
			if _, err := tx.ExecContext(ctx, s.d.rebind(`
				UPDATE sessions SET profile_json = ?,
					current_urgency = CASE WHEN current_urgency < ? THEN ? ELSE current_urgency END
				WHERE id = ?`), string(b), int(c.Urgency), int(c.Urgency), id,
			); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
			for _, t := range c.Turns {
				if err := s.insertTurn(ctx, tx, id, t); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return domain.AnimalProfile{}, err
	}
	return merged.Clone(), nil
}

// insertTurn appends turn inside tx with a strictly increasing timestamp.
func (s *SQLStore) insertTurn(ctx context.Context, tx *sql.Tx, id string, turn domain.Turn) error {
	var refsJSON sql.NullString
	if len(turn.ImageRefs) > 0 {
		b, err := json.Marshal(turn.ImageRefs)
		if err != nil {
			return fmt.Errorf("encode image refs: %w", err)
		}
		refsJSON = sql.NullString{String: string(b), Valid: true}
	}
	var urgency sql.NullInt64
	if turn.UrgencyAtTime != nil {
		urgency = sql.NullInt64{Int64: int64(*turn.UrgencyAtTime), Valid: true}
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, s.d.rebind(
		`SELECT MAX(ts) FROM turns WHERE session_id = ?`), id).Scan(&last); err != nil {
		return fmt.Errorf("read last turn: %w", err)
	}
	var lastTS time.Time
	if last.Valid {
		lastTS = time.UnixMilli(last.Int64)
	}
	ts := nextTimestamp(turn.Timestamp, lastTS).UnixMilli()

	if _, err := tx.ExecContext(ctx, s.d.rebind(`
		INSERT INTO turns (session_id, actor, content, ts, image_refs_json, urgency)
		VALUES (?, ?, ?, ?, ?, ?)`),
		id, string(turn.Actor), turn.Content, ts, refsJSON, urgency,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`
		UPDATE sessions SET last_activity_at = ?
		WHERE id = ? AND last_activity_at < ?`), ts, id, ts,
	); err != nil {
		return fmt.Errorf("update last_activity_at: %w", err)
	}
	return nil
}

// UpdateProfile reads, merges and writes the profile in one transaction.
func (s *SQLStore) UpdateProfile(ctx context.Context, id string, merge func(domain.AnimalProfile) domain.AnimalProfile) (domain.AnimalProfile, error) {
	var merged domain.AnimalProfile
	err := shared.WithRetry(ctx, "update profile", s.retry, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			sess, err := s.openForWrite(ctx, tx, id)
			if err != nil {
				return err
			}
			merged = merge(sess.Profile.Clone())
			b, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("encode profile: %w", err)
			}
			if _, err := tx.ExecContext(ctx, s.d.rebind(
				`UPDATE sessions SET profile_json = ? WHERE id = ?`), string(b), id); err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return domain.AnimalProfile{}, err
	}
	return merged.Clone(), nil
}

// UpdateUrgency stores level when it is higher than the current value.
func (s *SQLStore) UpdateUrgency(ctx context.Context, id string, level domain.UrgencyLevel) error {
	return shared.WithRetry(ctx, "update urgency", s.retry, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := s.openForWrite(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, s.d.rebind(`
				UPDATE sessions SET current_urgency = ?
				WHERE id = ? AND current_urgency < ?`), int(level), id, int(level),
			); err != nil {
				return fmt.Errorf("update urgency: %w", err)
			}
			return nil
		})
	})
}

// RecentTurns returns the last n turns in chronological order.
func (s *SQLStore) RecentTurns(ctx context.Context, id string, n int) ([]domain.Turn, error) {
	sess, err := s.getSession(ctx, s.db, id, "")
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	if n <= 0 {
		return nil, nil
	}

	turns, err := s.queryTurns(ctx, s.d.rebind(`
		SELECT actor, content, ts, image_refs_json, urgency
		FROM turns WHERE session_id = ? ORDER BY seq DESC LIMIT ?`), id, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// IdleBefore lists open sessions inactive since cutoff.
func (s *SQLStore) IdleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT id FROM sessions WHERE state = ? AND last_activity_at < ? ORDER BY id`),
		string(domain.StateAwaitingTurn), cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle sessions rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan idle session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}
	return ids, nil
}

// CloseIdle closes the session only if it is still idle at cutoff.
func (s *SQLStore) CloseIdle(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	var closed bool
	err := shared.WithRetry(ctx, "close session", s.retry, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			emptyProfile, err := json.Marshal(domain.AnimalProfile{Symptoms: domain.SymptomSet{}})
			if err != nil {
				return fmt.Errorf("encode profile: %w", err)
			}
			res, err := tx.ExecContext(ctx, s.d.rebind(`
				UPDATE sessions SET state = ?, profile_json = ?
				WHERE id = ? AND state = ? AND last_activity_at < ?`),
				string(domain.StateClosed), string(emptyProfile),
				id, string(domain.StateAwaitingTurn), cutoff.UnixMilli(),
			)
			if err != nil {
				return fmt.Errorf("close session: %w", err)
			}
			rows, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("get rows affected: %w", err)
			}
			closed = rows > 0
			if !closed {
				return nil
			}
			if _, err := tx.ExecContext(ctx, s.d.rebind(
				`DELETE FROM turns WHERE session_id = ?`), id); err != nil {
				return fmt.Errorf("delete turns: %w", err)
			}
			return nil
		})
	})
	return closed, err
}

// DeleteIdleBefore closes all sessions idle since cutoff.
func (s *SQLStore) DeleteIdleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.IdleBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	var closed []string
	for _, id := range ids {
		ok, err := s.CloseIdle(ctx, id, cutoff)
		if err != nil {
			return closed, err
		}
		if ok {
			closed = append(closed, id)
		}
	}
	return closed, nil
}

// PurgeClosedBefore removes closed session rows older than cutoff.
func (s *SQLStore) PurgeClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := shared.WithRetry(ctx, "purge sessions", s.retry, func() error {
		defer s.lockWrites()()
		res, err := s.db.ExecContext(ctx, s.d.rebind(`
			DELETE FROM sessions WHERE state = ? AND last_activity_at < ?`),
			string(domain.StateClosed), cutoff.UnixMilli())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge closed sessions: %w", err)
	}
	return n, nil
}

// openForWrite loads the session inside tx and rejects missing or closed ones.
func (s *SQLStore) openForWrite(ctx context.Context, tx *sql.Tx, id string) (*domain.Session, error) {
	sess, err := s.getSession(ctx, tx, id, s.d.forUpdate)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	if sess.State == domain.StateClosed {
		return nil, domain.ErrSessionClosed
	}
	return sess, nil
}

func (s *SQLStore) lockWrites() func() {
	if !s.d.oneWriter {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	defer s.lockWrites()()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) queryTurns(ctx context.Context, query string, args ...any) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	var turns []domain.Turn
	for rows.Next() {
		var (
			t        domain.Turn
			actor    string
			ts       int64
			refsJSON sql.NullString
			urgency  sql.NullInt64
		)
		if err := rows.Scan(&actor, &t.Content, &ts, &refsJSON, &urgency); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Actor = domain.Actor(actor)
		t.Timestamp = time.UnixMilli(ts)
		if refsJSON.Valid && refsJSON.String != "" {
			if err := json.Unmarshal([]byte(refsJSON.String), &t.ImageRefs); err != nil {
				return nil, domain.Internal("decode image refs", err)
			}
		}
		if urgency.Valid {
			u := domain.UrgencyLevel(urgency.Int64)
			t.UrgencyAtTime = &u
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}
