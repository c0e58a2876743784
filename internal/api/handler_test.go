//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/vetcheck/internal/chat"
	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/emergency"
	"github.com/ashureev/vetcheck/internal/engine"
	"github.com/ashureev/vetcheck/internal/store"
	"github.com/ashureev/vetcheck/internal/vision"
)

type fakeAsker struct {
	question string
}

func (f *fakeAsker) AskQuestion(_ context.Context, _ []byte, q string) (vision.QuickAnswer, error) {
	f.question = q
	return vision.QuickAnswer{Question: q, Answer: "no visible wound", Confidence: 0.8}, nil
}

type testServer struct {
	*httptest.Server
	engine *engine.Orchestrator
	store  *store.MemoryStore
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	st := store.NewMemory()
	dir := emergency.NewService()
	eng := engine.New(st, vision.NewOrchestrator(nil), chat.NewGenerator(nil), dir)

	r := chi.NewRouter()
	NewHandler(eng, dir, opts...).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: eng, store: st}
}

func (s *testServer) startSession(t *testing.T) string {
	t.Helper()
	resp, err := http.Post(s.URL+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.SessionID)
	return body.SessionID
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type upload struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(imagesField, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

func TestClassify(t *testing.T) {
	h := NewHandler(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", domain.Invalid("message must not be empty"), http.StatusBadRequest, "message must not be empty"},
		{"not found", fmt.Errorf("load: %w", domain.ErrSessionNotFound), http.StatusNotFound, "load: session not found"},
		{"internal hides detail", domain.Internal("append turn", errors.New("disk I/O error")), http.StatusInternalServerError, "Internal Server Error"},
		{"unavailable", fmt.Errorf("vqa: %w", errdefs.ErrUnavailable), http.StatusServiceUnavailable, "Service Unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "Gateway Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := h.classify(ctx, tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestCreateSession(t *testing.T) {
	srv := newTestServer(t)
	id := srv.startSession(t)

	var sess domain.Session
	status := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+id+"/history", nil, &sess)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, domain.ActorBot, sess.Turns[0].Actor)
	assert.Equal(t, engine.WelcomeMessage, sess.Turns[0].Content)
}

func TestSendMessageJSON(t *testing.T) {
	srv := newTestServer(t)
	id := srv.startSession(t)
	lat, lon := 45.33, -75.69

	var got map[string]any
	status := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/messages", messageRequest{
		Message:   "My dog is a 2 year old Labrador, 30 lbs, vomiting and lethargic",
		Latitude:  &lat,
		Longitude: &lon,
	}, &got)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, id, got["session_id"])
	assert.Equal(t, "HIGH", got["urgency"])
	assert.Equal(t, true, got["emergency_triggered"])
	assert.NotEmpty(t, got["parts_html"])
	contacts, ok := got["contacts"].(map[string]any)
	require.True(t, ok, "emergency turns carry contacts")
	assert.Equal(t, emergency.Hotline, contacts["emergency_hotline"])
	assert.NotEmpty(t, contacts["nearest_emergency_vets"])
}

func TestSendMessageMultipart(t *testing.T) {
	srv := newTestServer(t)
	id := srv.startSession(t)

	body, ct := multipartBody(t, map[string]string{"message": "my cat keeps sneezing"},
		upload{name: "cat.png", data: pngBytes(t)})
	resp, err := http.Post(srv.URL+"/api/sessions/"+id+"/messages", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got turnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, domain.UrgencyMedium, got.Urgency)
	require.Len(t, got.ImageResults, 1)
	assert.Equal(t, domain.SourceHeuristic, got.ImageResults[0].Source)
	assert.Equal(t, "cat", got.Profile.Species)
}

func TestSendMessageErrors(t *testing.T) {
	srv := newTestServer(t)
	id := srv.startSession(t)
	lat := 10.0

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"empty message", "/api/sessions/" + id + "/messages", messageRequest{Message: "  "}, http.StatusBadRequest},
		{"half location", "/api/sessions/" + id + "/messages", messageRequest{Message: "hi", Latitude: &lat}, http.StatusBadRequest},
		{"unknown field", "/api/sessions/" + id + "/messages", map[string]string{"msg": "hi"}, http.StatusBadRequest},
		{"unknown session", "/api/sessions/0b9d5a3e-8f4c-4c61-9a8e-3d1f2b7c6a50/messages", messageRequest{Message: "hi"}, http.StatusNotFound},
		{"malformed id", "/api/sessions/not-a-uuid/messages", messageRequest{Message: "hi"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := doJSON(t, http.MethodPost, srv.URL+tt.path, tt.body, nil)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestProfileRoutes(t *testing.T) {
	srv := newTestServer(t)
	id := srv.startSession(t)
	url := srv.URL + "/api/sessions/" + id + "/profile"

	var before profileResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, url, nil, &before))
	assert.False(t, before.Complete)
	assert.Equal(t, "No pet information available yet.", before.Summary)

	species, age := "rabbit", 3
	var after profileResponse
	status := doJSON(t, http.MethodPut, url, domain.ProfilePatch{Species: &species, AgeYears: &age}, &after)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "rabbit", after.Profile.Species)
	assert.True(t, after.Complete)

	negative := -1
	status = doJSON(t, http.MethodPut, url, domain.ProfilePatch{AgeYears: &negative}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRateLimitedMessages(t *testing.T) {
	srv := newTestServer(t, WithRateLimiter(NewRateLimiter(2)))
	id := srv.startSession(t)
	url := srv.URL + "/api/sessions/" + id + "/messages"

	for range 2 {
		assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, url, messageRequest{Message: "my dog is itchy"}, nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, doJSON(t, http.MethodPost, url, messageRequest{Message: "still itchy"}, nil))

	other := srv.startSession(t)
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+other+"/messages",
		messageRequest{Message: "my cat is itchy"}, nil), "limits are per session")
}

func TestImageRoutes(t *testing.T) {
	asker := &fakeAsker{}
	srv := newTestServer(t, WithQuestionAsker(asker))

	t.Run("analyze", func(t *testing.T) {
		body, ct := multipartBody(t, nil, upload{name: "a.png", data: pngBytes(t)})
		resp, err := http.Post(srv.URL+"/api/images/analyze", ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got struct {
			Results        []domain.AnalysisResult `json:"results"`
			OverallUrgency domain.UrgencyLevel     `json:"overall_urgency"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got.Results, 1)
		assert.Equal(t, domain.UrgencyLow, got.OverallUrgency)
	})

	t.Run("validate", func(t *testing.T) {
		body, ct := multipartBody(t, nil,
			upload{name: "ok.png", data: pngBytes(t)},
			upload{name: "notes.txt", data: []byte("hello")})
		resp, err := http.Post(srv.URL+"/api/images/validate", ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got struct {
			Images []imageValidation `json:"images"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got.Images, 2)
		assert.True(t, got.Images[0].Valid)
		require.NotNil(t, got.Images[0].Info)
		assert.Equal(t, "png", got.Images[0].Info.Format)
		assert.False(t, got.Images[1].Valid)
		assert.NotEmpty(t, got.Images[1].Error)
	})

	t.Run("question", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"question": "Is there a wound?"},
			upload{name: "a.png", data: pngBytes(t)})
		resp, err := http.Post(srv.URL+"/api/images/question", ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got vision.QuickAnswer
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "no visible wound", got.Answer)
		assert.Equal(t, "Is there a wound?", asker.question)
	})
}

func TestQuestionWithoutAsker(t *testing.T) {
	srv := newTestServer(t)
	body, ct := multipartBody(t, map[string]string{"question": "ok?"}, upload{name: "a.png", data: pngBytes(t)})
	resp, err := http.Post(srv.URL+"/api/images/question", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEmergencyRoutes(t *testing.T) {
	srv := newTestServer(t)

	var vets struct {
		Vets  []domain.VetLocation `json:"vets"`
		Count int                  `json:"count"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/emergency/vets", nil, &vets))
	assert.Equal(t, len(vets.Vets), vets.Count)
	assert.NotZero(t, vets.Count)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/api/emergency/vets?lat=abc&lon=1", nil, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/api/emergency/vets?radius=-5", nil, nil))

	var contacts emergency.Contacts
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/emergency/contacts", nil, &contacts))
	assert.Equal(t, emergency.PoisonControlHotline, contacts.PoisonControl)
	assert.Empty(t, contacts.NearestEmergencyVets, "no location skips the clinic lookup")

	var instr struct {
		IsEmergency  bool     `json:"is_emergency"`
		Instructions []string `json:"instructions"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet,
		srv.URL+"/api/emergency/instructions?urgency=critical&symptoms=seizure", nil, &instr))
	assert.True(t, instr.IsEmergency)
	require.NotEmpty(t, instr.Instructions)
	assert.True(t, strings.HasPrefix(instr.Instructions[0], "IMMEDIATE ACTION REQUIRED:"))

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/api/emergency/instructions?urgency=severe", nil, nil))
}
