// Package engine sequences one conversation turn: image analysis, signal
// extraction, urgency classification, profile persistence and reply
// generation. It owns the per-session locks and the idle sweeper.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/vetcheck/internal/chat"
	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/emergency"
	"github.com/ashureev/vetcheck/internal/store"
	"github.com/ashureev/vetcheck/internal/telemetry"
	"github.com/ashureev/vetcheck/internal/vision"
)

const (
	DefaultRecentTurns      = 5
	DefaultMaxMessageLength = 2000

	// WelcomeMessage is the first BOT turn of every session.
	WelcomeMessage = "Hello! I'm your virtual veterinary assistant. I can help you assess your pet's health concerns, " +
		"analyze symptoms, and provide guidance on when to seek veterinary care. " +
		"Please tell me about your pet and what concerns you have today."
)

// ImageAnalyzer runs the provider chain over images, preserving order.
type ImageAnalyzer interface {
	AnalyzeAll(ctx context.Context, images [][]byte) []domain.AnalysisResult
}

// ReplyGenerator produces the assistant reply. It must not fail.
type ReplyGenerator interface {
	Generate(ctx context.Context, message string, c chat.Context) chat.Reply
}

// EmergencyLookup supplies nearby care for emergency-tier verdicts.
// A nil location means the caller did not share one.
type EmergencyLookup interface {
	ContactInfo(ctx context.Context, location *domain.GeoPoint) emergency.Contacts
}

// Orchestrator is the turn state machine.
type Orchestrator struct {
	store   store.ProfileStore
	images  ImageAnalyzer
	replies ReplyGenerator
	lookup  EmergencyLookup

	recentTurns      int
	maxMessageLength int
	maxImageBytes    int

	locksMu sync.Mutex
	locks   map[string]*sessionLock
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics *telemetry.Instruments
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecentTurns sets how many prior turns are passed to the reply generator.
func WithRecentTurns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.recentTurns = n
		}
	}
}

// WithMaxMessageLength caps the sanitized message length in characters.
func WithMaxMessageLength(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxMessageLength = n
		}
	}
}

// WithMaxImageBytes caps a single image upload.
func WithMaxImageBytes(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxImageBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInstruments records turn metrics.
func WithInstruments(m *telemetry.Instruments) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// New creates an Orchestrator. lookup may be nil, in which case emergency
// verdicts carry no contacts.
func New(st store.ProfileStore, images ImageAnalyzer, replies ReplyGenerator, lookup EmergencyLookup, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:            st,
		images:           images,
		replies:          replies,
		lookup:           lookup,
		recentTurns:      DefaultRecentTurns,
		maxMessageLength: DefaultMaxMessageLength,
		maxImageBytes:    vision.DefaultMaxImageBytes,
		now:              time.Now,
		newID:            uuid.NewString,
		logger:           slog.Default(),
		locks:            make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes all mutations of one session. The entry lives only while
// someone holds or waits for it.
func (o *Orchestrator) lock(id string) func() {
	o.locksMu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sessionLock{}
		o.locks[id] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(o.locks, id)
		}
		o.locksMu.Unlock()
	}
}

// StartSession creates a session and appends the welcome turn.
func (o *Orchestrator) StartSession(ctx context.Context) (*domain.Session, error) {
	id := o.newID()
	defer o.lock(id)()

	if _, err := o.store.GetOrCreate(ctx, id); err != nil {
		return nil, domain.Internal("create session", err)
	}
	if err := o.store.AppendTurn(ctx, id, domain.Turn{
		Actor:     domain.ActorBot,
		Content:   WelcomeMessage,
		Timestamp: o.now(),
	}); err != nil {
		return nil, domain.Internal("append welcome turn", err)
	}

	sess, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, domain.Internal("load session", err)
	}
	o.logger.Info("Session started", "session_id", id)
	return sess, nil
}

// History returns the session with its full turn list.
func (o *Orchestrator) History(ctx context.Context, id string) (*domain.Session, error) {
	return o.load(ctx, id)
}

// Profile returns the session's animal profile.
func (o *Orchestrator) Profile(ctx context.Context, id string) (domain.AnimalProfile, error) {
	sess, err := o.load(ctx, id)
	if err != nil {
		return domain.AnimalProfile{}, err
	}
	return sess.Profile, nil
}

// UpdateProfile explicitly overwrites profile fields.
func (o *Orchestrator) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.AnimalProfile, error) {
	if patch.AgeYears != nil && *patch.AgeYears < 0 {
		return domain.AnimalProfile{}, domain.Invalid("age must not be negative")
	}
	if patch.WeightKg != nil && *patch.WeightKg < 0 {
		return domain.AnimalProfile{}, domain.Invalid("weight must not be negative")
	}

	defer o.lock(id)()
	if _, err := o.loadOpen(ctx, id); err != nil {
		return domain.AnimalProfile{}, err
	}
	p, err := o.store.UpdateProfile(ctx, id, func(p domain.AnimalProfile) domain.AnimalProfile {
		return p.Apply(patch)
	})
	if err != nil {
		return domain.AnimalProfile{}, storeErr("update profile", err)
	}
	return p, nil
}

// AnalyzeImages validates and analyzes images outside of any session.
func (o *Orchestrator) AnalyzeImages(ctx context.Context, images []domain.Image) ([]domain.AnalysisResult, error) {
	if len(images) == 0 {
		return nil, domain.Invalid("no images supplied")
	}
	data, err := o.validateImages(images)
	if err != nil {
		return nil, err
	}
	return o.images.AnalyzeAll(ctx, data), nil
}

func (o *Orchestrator) load(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, domain.Invalid("session id is required")
	}
	sess, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, domain.Internal("load session", err)
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (o *Orchestrator) loadOpen(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == domain.StateClosed {
		return nil, domain.ErrSessionClosed
	}
	return sess, nil
}

func (o *Orchestrator) validateImages(images []domain.Image) ([][]byte, error) {
	data := make([][]byte, len(images))
	for i, img := range images {
		if _, err := vision.Validate(img, o.maxImageBytes); err != nil {
			return nil, err
		}
		data[i] = img.Data
	}
	return data, nil
}
