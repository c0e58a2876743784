// Package api provides HTTP handlers for the triage API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/containerd/errdefs/pkg/errhttp"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/emergency"
	"github.com/ashureev/vetcheck/internal/engine"
	"github.com/ashureev/vetcheck/internal/identity"
	"github.com/ashureev/vetcheck/internal/render"
	"github.com/ashureev/vetcheck/internal/vision"
)

// TurnEngine is the conversation engine behind the session routes.
type TurnEngine interface {
	StartSession(ctx context.Context) (*domain.Session, error)
	ProcessTurn(ctx context.Context, req engine.TurnRequest) (*engine.TurnResult, error)
	History(ctx context.Context, id string) (*domain.Session, error)
	Profile(ctx context.Context, id string) (domain.AnimalProfile, error)
	UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.AnimalProfile, error)
	AnalyzeImages(ctx context.Context, images []domain.Image) ([]domain.AnalysisResult, error)
}

// Directory answers nearby-clinic and emergency-contact queries.
type Directory interface {
	FindNearby(ctx context.Context, center *domain.GeoPoint, radiusKm float64) []domain.VetLocation
	ContactInfo(ctx context.Context, center *domain.GeoPoint) emergency.Contacts
}

// QuestionAsker answers a free-form question about one image.
type QuestionAsker interface {
	AskQuestion(ctx context.Context, image []byte, question string) (vision.QuickAnswer, error)
}

// Handler serves the session, image, emergency and websocket routes.
type Handler struct {
	engine         TurnEngine
	directory      Directory
	asker          QuestionAsker
	renderer       *render.Renderer
	limiter        *RateLimiter
	maxImageBytes  int
	radiusKm       float64
	originPatterns []string
	logger         *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithQuestionAsker enables POST /api/images/question.
func WithQuestionAsker(a QuestionAsker) Option { return func(h *Handler) { h.asker = a } }

// WithRateLimiter sets the limiter for session creation and messages.
func WithRateLimiter(l *RateLimiter) Option { return func(h *Handler) { h.limiter = l } }

// WithMaxImageBytes caps a single uploaded image.
func WithMaxImageBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxImageBytes = n
		}
	}
}

// WithRadiusKm sets the default clinic search radius.
func WithRadiusKm(km float64) Option {
	return func(h *Handler) {
		if km > 0 {
			h.radiusKm = km
		}
	}
}

// WithOriginPatterns restricts websocket origins. Empty allows any origin.
func WithOriginPatterns(p []string) Option { return func(h *Handler) { h.originPatterns = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a new Handler.
func NewHandler(eng TurnEngine, dir Directory, opts ...Option) *Handler {
	h := &Handler{
		engine:        eng,
		directory:     dir,
		renderer:      render.New(),
		maxImageBytes: vision.DefaultMaxImageBytes,
		radiusKm:      emergency.DefaultRadiusKm,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers every API route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	limit := h.limiter.Middleware

	r.Route("/api/sessions", func(r chi.Router) {
		r.With(limit(ByIP)).Post("/", h.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(identity.Middleware)
			r.With(limit(BySession)).Post("/messages", h.SendMessage)
			r.Get("/history", h.History)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.PutProfile)
		})
	})

	r.Route("/api/images", func(r chi.Router) {
		r.Post("/analyze", h.AnalyzeImages)
		r.Post("/validate", h.ValidateImages)
		r.Post("/question", h.AskQuestion)
	})

	r.Route("/api/emergency", func(r chi.Router) {
		r.Get("/vets", h.NearbyVets)
		r.Get("/contacts", h.Contacts)
		r.Get("/instructions", h.Instructions)
	})

	r.With(identity.Middleware).Get("/ws/chat", h.Chat)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeError maps err onto an HTTP status. Server-side failures are logged
// and answered with the generic status text.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := h.classify(r.Context(), err)
	Error(w, status, msg)
}

func (h *Handler) classify(ctx context.Context, err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)
	}
	status := errhttp.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "Request failed", "session_id", identity.SessionIDFromContext(ctx), "error", err)
		return status, http.StatusText(status)
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return status, verr.Reason
	}
	return status, err.Error()
}
