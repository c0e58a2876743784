package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/vetcheck/internal/domain"
)

func dialChat(t *testing.T, srv *testServer, id string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?session_id=" + id
	ws, resp, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func sendText(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, ws.Write(context.Background(), websocket.MessageText, data))
}

func TestChatStreamsPartsThenVerdict(t *testing.T) {
	srv := newTestServer(t)
	id := srv.startSession(t)
	ws := dialChat(t, srv, id)

	sendText(t, ws, messageRequest{Message: "my dog is having a seizure"})

	var parts int
	for {
		frame := readFrame(t, ws)
		if frame["type"] == FramePart {
			assert.EqualValues(t, parts, frame["index"])
			assert.NotEmpty(t, frame["text"])
			assert.NotEmpty(t, frame["html"])
			parts++
			continue
		}
		require.Equal(t, FrameVerdict, frame["type"])
		result, ok := frame["result"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "CRITICAL", result["urgency"])
		assert.Equal(t, true, result["emergency_triggered"])
		break
	}
	assert.Positive(t, parts)

	sess, err := srv.engine.History(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 3)
	assert.Equal(t, domain.UrgencyCritical, sess.CurrentUrgency)
}

func TestChatErrorFrames(t *testing.T) {
	srv := newTestServer(t, WithRateLimiter(NewRateLimiter(1)))
	id := srv.startSession(t)
	ws := dialChat(t, srv, id)

	require.NoError(t, ws.Write(context.Background(), websocket.MessageText, []byte("not json")))
	frame := readFrame(t, ws)
	assert.Equal(t, FrameError, frame["type"])
	assert.EqualValues(t, http.StatusBadRequest, frame["status"])

	sendText(t, ws, messageRequest{Message: "   "})
	frame = readFrame(t, ws)
	assert.Equal(t, FrameError, frame["type"])
	assert.EqualValues(t, http.StatusBadRequest, frame["status"])

	sendText(t, ws, messageRequest{Message: "again"})
	frame = readFrame(t, ws)
	assert.Equal(t, FrameError, frame["type"])
	assert.EqualValues(t, http.StatusTooManyRequests, frame["status"])
}

func TestChatRejectsUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws/chat?session_id=0b9d5a3e-8f4c-4c61-9a8e-3d1f2b7c6a50")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/ws/chat")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestWSOriginPatterns(t *testing.T) {
	h := NewHandler(nil, nil)
	assert.Equal(t, []string{"*"}, h.wsOriginPatterns())

	h = NewHandler(nil, nil, WithOriginPatterns([]string{"https://Vet.Example", "localhost:3000"}))
	assert.Equal(t, []string{"vet.example", "localhost:3000"}, h.wsOriginPatterns())

	h = NewHandler(nil, nil, WithOriginPatterns([]string{"https://vet.example", "*"}))
	assert.Equal(t, []string{"*"}, h.wsOriginPatterns())
}
