package engine

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ashureev/vetcheck/internal/chat"
	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/emergency"
	"github.com/ashureev/vetcheck/internal/store"
	"github.com/ashureev/vetcheck/internal/telemetry"
	"github.com/ashureev/vetcheck/internal/triage"
)

// TurnRequest is one user submission.
type TurnRequest struct {
	SessionID string
	Message   string
	Images    []domain.Image
	Location  *domain.GeoPoint
}

// TurnResult is the verdict and reply for one turn.
type TurnResult struct {
	SessionID          string                  `json:"session_id"`
	Reply              string                  `json:"reply"`
	Parts              []string                `json:"parts"`
	ReplySource        string                  `json:"reply_source"`
	Urgency            domain.UrgencyLevel     `json:"urgency"`
	Recommendations    []string                `json:"recommendations"`
	EmergencyTriggered bool                    `json:"emergency_triggered"`
	Contacts           *emergency.Contacts     `json:"contacts,omitempty"`
	Instructions       []string                `json:"instructions,omitempty"`
	ImageResults       []domain.AnalysisResult `json:"image_results,omitempty"`
	Profile            domain.AnimalProfile    `json:"profile"`
}

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>|<style\b[^>]*>.*?</style\s*>`)
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Sanitize drops script and style bodies, turns every remaining tag into a
// word break and collapses whitespace.
func Sanitize(message string) string {
	s := scriptBlock.ReplaceAllString(message, " ")
	s = htmlTag.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ProcessTurn runs one turn. Only validation, unknown-session and
// closed-session errors are expected; provider failures degrade the reply
// instead of failing the turn.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.ProcessTurn")
	defer span.End()

	if req.SessionID == "" {
		return nil, domain.Invalid("session id is required")
	}
	message := Sanitize(req.Message)
	if message == "" && len(req.Images) == 0 {
		return nil, domain.Invalid("message must not be empty")
	}
	if utf8.RuneCountInString(message) > o.maxMessageLength {
		return nil, domain.Invalid("message exceeds %d characters", o.maxMessageLength)
	}
	imageData, err := o.validateImages(req.Images)
	if err != nil {
		return nil, err
	}

	defer o.lock(req.SessionID)()

	sess, err := o.loadOpen(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	var results []domain.AnalysisResult
	if len(imageData) > 0 {
		results = o.images.AnalyzeAll(ctx, imageData)
	}

	signals := triage.Extract(message)
	profile := sess.Profile.MergeSignals(signals)
	verdict := triage.Classify(message, results, sess.CurrentUrgency)
	recent := sess.RecentTurns(o.recentTurns)
	userTurn := domain.Turn{
		Actor:     domain.ActorUser,
		Content:   message,
		Timestamp: o.now(),
		ImageRefs: imageRefs(req.Images),
	}

	symptoms := append(domain.SymptomSet(nil), profile.Symptoms...)
	for _, r := range results {
		symptoms = symptoms.Add(r.Symptoms...)
	}
	reply := o.replies.Generate(ctx, message, chat.Context{
		Profile:        profile,
		Symptoms:       symptoms,
		CurrentUrgency: verdict,
		ImageResults:   results,
		RecentTurns:    recent,
	})

	stored, err := o.store.CommitTurn(ctx, sess.ID, store.TurnCommit{
		Merge:   func(p domain.AnimalProfile) domain.AnimalProfile { return p.MergeSignals(signals) },
		Urgency: verdict,
		Turns: []domain.Turn{userTurn, {
			Actor:         domain.ActorBot,
			Content:       reply.Text,
			Timestamp:     o.now(),
			UrgencyAtTime: &verdict,
		}},
	})
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionClosed):
		return nil, err
	case err != nil:
		// The reply is already generated; return it unsaved.
		span.RecordError(err)
		o.logger.Error("Failed to persist turn", "session_id", sess.ID, "error", err)
	default:
		profile = stored
	}

	res := &TurnResult{
		SessionID:          sess.ID,
		Reply:              reply.Text,
		Parts:              reply.Parts,
		ReplySource:        reply.Source,
		Urgency:            verdict,
		Recommendations:    Recommendations(verdict, profile.Symptoms, results),
		EmergencyTriggered: verdict.IsEmergency(),
		ImageResults:       results,
		Profile:            profile,
	}
	if res.EmergencyTriggered {
		res.Instructions = emergency.Instructions(verdict, symptoms)
		if o.lookup != nil {
			contacts := o.lookup.ContactInfo(ctx, req.Location)
			res.Contacts = &contacts
		}
	}

	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("triage.urgency", verdict.String()),
		attribute.Bool("triage.emergency", res.EmergencyTriggered),
		attribute.Int("triage.images", len(results)),
	)
	o.metrics.RecordTurn(ctx, verdict.String(), res.EmergencyTriggered)
	o.logger.Info("Turn processed",
		"session_id", sess.ID,
		"urgency", verdict.String(),
		"emergency", res.EmergencyTriggered,
		"images", len(results),
		"reply_source", reply.Source)
	return res, nil
}

// Recommendations lists the care steps shown with a verdict.
func Recommendations(u domain.UrgencyLevel, symptoms domain.SymptomSet, images []domain.AnalysisResult) []string {
	out := []string{u.Recommendation()}
	if symptoms.Contains("vomiting") {
		out = append(out, "Withhold food for 12 hours, provide small amounts of water")
	}
	if symptoms.Contains("limping") {
		out = append(out, "Limit physical activity and observe for swelling")
	}
	for _, r := range images {
		if r.Confidence <= 0.7 {
			continue
		}
		desc := r.Description
		if desc == "" {
			desc = "No description available"
		}
		out = append(out, "Image analysis suggests: "+desc)
	}
	return out
}

// imageRefs names each image by a content-derived id, keeping its extension.
func imageRefs(images []domain.Image) []string {
	if len(images) == 0 {
		return nil
	}
	refs := make([]string, len(images))
	for i, img := range images {
		refs[i] = uuid.NewSHA1(uuid.NameSpaceURL, img.Data).String() + strings.ToLower(filepath.Ext(img.Name))
	}
	return refs
}

// storeErr passes session-state errors through and wraps the rest as internal.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionClosed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.Internal(op, err)
}
