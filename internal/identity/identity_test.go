package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

const validID = "3f2b8c1e-4a5d-4e6f-9a7b-1c2d3e4f5a6b"

func serve(t *testing.T, r *http.Request) (int, string) {
	t.Helper()
	var got string
	h := func(w http.ResponseWriter, r *http.Request) {
		got = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
	router := chi.NewRouter()
	router.Route("/sessions/{id}", func(r chi.Router) {
		r.Use(Middleware)
		r.Get("/", h)
	})
	router.With(Middleware).Get("/ws", h)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w.Code, got
}

func TestMiddlewareSources(t *testing.T) {
	t.Parallel()

	code, got := serve(t, httptest.NewRequest(http.MethodGet, "/ws?session_id="+validID, nil))
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, validID, got)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set(SessionHeaderName, "  "+validID+" ")
	code, got = serve(t, req)
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, validID, got)

	code, got = serve(t, httptest.NewRequest(http.MethodGet, "/sessions/"+validID+"/", nil))
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, validID, got)

	code, got = serve(t, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNoContent, code)
	assert.Empty(t, got)
}

func TestMiddlewareRejectsMalformedIDs(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"default", "../etc/passwd", "123"} {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set(SessionHeaderName, id)
		code, _ := serve(t, req)
		assert.Equal(t, http.StatusBadRequest, code, id)
	}
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", IPFromRequest(r))
	r.RemoteAddr = "garbage"
	assert.Equal(t, "garbage", IPFromRequest(r))
}
