package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/engine"
	"github.com/ashureev/vetcheck/internal/identity"
)

const (
	// maxImagesPerRequest caps the files accepted in one multipart upload.
	maxImagesPerRequest = 5
	maxJSONBody         = 64 << 10
	imagesField         = "images"
)

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Welcome   string        `json:"welcome"`
	Turns     []domain.Turn `json:"turns"`
}

// messageRequest is the JSON (or multipart form) body of a turn.
type messageRequest struct {
	Message   string   `json:"message"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (m messageRequest) location() (*domain.GeoPoint, error) {
	return geoPoint(m.Latitude, m.Longitude)
}

// turnResponse adds rendered HTML parts to an engine result.
type turnResponse struct {
	*engine.TurnResult
	PartsHTML []string `json:"parts_html"`
}

func (h *Handler) turnResponse(res *engine.TurnResult) turnResponse {
	return turnResponse{TurnResult: res, PartsHTML: h.renderer.Parts(res.Parts)}
}

// CreateSession starts a conversation and returns its welcome turn.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.StartSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := sessionResponse{SessionID: s.ID, Turns: s.Turns}
	if len(s.Turns) > 0 {
		resp.Welcome = s.Turns[0].Content
	}
	JSON(w, http.StatusCreated, resp)
}

// SendMessage processes one user turn.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := identity.SessionIDFromContext(r.Context())

	msg, images, err := h.parseMessage(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	loc, err := msg.location()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.engine.ProcessTurn(r.Context(), engine.TurnRequest{
		SessionID: id,
		Message:   msg.Message,
		Images:    images,
		Location:  loc,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.turnResponse(res))
}

// History returns the full session including turns.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.History(r.Context(), identity.SessionIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

type profileResponse struct {
	Profile       domain.AnimalProfile `json:"profile"`
	Summary       string               `json:"summary"`
	Complete      bool                 `json:"complete"`
	MissingFields []string             `json:"missing_fields"`
}

func newProfileResponse(p domain.AnimalProfile) profileResponse {
	return profileResponse{
		Profile:       p,
		Summary:       p.Summary(),
		Complete:      p.IsComplete(),
		MissingFields: p.MissingFields(),
	}
}

// GetProfile returns the session's animal profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Profile(r.Context(), identity.SessionIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newProfileResponse(p))
}

// PutProfile overwrites the supplied profile fields.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.engine.UpdateProfile(r.Context(), identity.SessionIDFromContext(r.Context()), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newProfileResponse(p))
}

// parseMessage accepts either a JSON body or a multipart form with text
// fields and image files.
func (h *Handler) parseMessage(w http.ResponseWriter, r *http.Request) (messageRequest, []domain.Image, error) {
	var msg messageRequest
	if !isMultipart(r) {
		err := decodeJSON(w, r, &msg)
		return msg, nil, err
	}

	images, form, err := h.readImages(w, r, imagesField)
	if err != nil {
		return msg, nil, err
	}
	msg.Message = form.Get("message")
	if msg.Latitude, err = optionalFloat(form.Get("latitude"), "latitude"); err != nil {
		return msg, nil, err
	}
	if msg.Longitude, err = optionalFloat(form.Get("longitude"), "longitude"); err != nil {
		return msg, nil, err
	}
	return msg, images, nil
}

// readImages parses a multipart body and reads every file under field.
func (h *Handler) readImages(w http.ResponseWriter, r *http.Request, field string) ([]domain.Image, url.Values, error) {
	limit := int64(h.maxImageBytes)*maxImagesPerRequest + maxJSONBody
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, domain.Invalid("upload exceeds %d MB limit", limit>>20)
		}
		return nil, nil, domain.Invalid("invalid multipart form: %v", err)
	}
	form := url.Values(r.MultipartForm.Value)

	files := r.MultipartForm.File[field]
	if len(files) > maxImagesPerRequest {
		return nil, form, domain.Invalid("at most %d images per request", maxImagesPerRequest)
	}
	images := make([]domain.Image, 0, len(files))
	for _, fh := range files {
		img, err := h.readImage(fh)
		if err != nil {
			return nil, form, err
		}
		images = append(images, img)
	}
	return images, form, nil
}

func (h *Handler) readImage(fh *multipart.FileHeader) (domain.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Image{}, domain.Invalid("read image %q: %v", fh.Filename, err)
	}
	defer f.Close()

	// One byte past the cap lets validation report the size violation.
	data, err := io.ReadAll(io.LimitReader(f, int64(h.maxImageBytes)+1))
	if err != nil {
		return domain.Image{}, domain.Invalid("read image %q: %v", fh.Filename, err)
	}
	return domain.Image{Name: fh.Filename, Data: data}, nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mt, "multipart/")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("invalid request body: %v", err)
	}
	return nil
}

// optionalFloat parses raw, treating blank as absent.
func optionalFloat(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.Invalid("%s must be a number", name)
	}
	return &f, nil
}

// geoPoint validates an optional coordinate pair. Both or neither must be set.
func geoPoint(lat, lon *float64) (*domain.GeoPoint, error) {
	if lat == nil && lon == nil {
		return nil, nil
	}
	if lat == nil || lon == nil {
		return nil, domain.Invalid("latitude and longitude must be supplied together")
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return nil, domain.Invalid("coordinates (%g, %g) are out of range", *lat, *lon)
	}
	return &domain.GeoPoint{Latitude: *lat, Longitude: *lon}, nil
}
