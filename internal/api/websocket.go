package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/ashureev/vetcheck/internal/engine"
	"github.com/ashureev/vetcheck/internal/identity"
)

// Frame types sent on /ws/chat.
const (
	FramePart    = "part"
	FrameVerdict = "verdict"
	FrameError   = "error"
)

type partFrame struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Text  string `json:"text"`
	HTML  string `json:"html"`
}

type verdictFrame struct {
	Type   string       `json:"type"`
	Result turnResponse `json:"result"`
}

type errorFrame struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// Chat streams each turn's reply parts followed by a verdict frame.
// The client sends {"message": "...", "latitude": n, "longitude": n}.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if _, err := h.engine.History(r.Context(), sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.wsOriginPatterns(),
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.logger.Info("Chat connection opened", "session_id", sessionID, "ip", identity.IPFromRequest(r))
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}
		if !h.handleFrame(ctx, ws, sessionID, data) {
			return
		}
	}
}

// handleFrame processes one client message. It returns false when the
// connection should close.
func (h *Handler) handleFrame(ctx context.Context, ws *websocket.Conn, sessionID string, data []byte) bool {
	var msg messageRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return h.sendFrame(ctx, ws, errorFrame{Type: FrameError, Status: http.StatusBadRequest, Error: "invalid message"})
	}
	if !h.limiter.Allow(SessionKey(sessionID)) {
		return h.sendFrame(ctx, ws, errorFrame{Type: FrameError, Status: http.StatusTooManyRequests, Error: "too many messages, please slow down"})
	}
	loc, err := msg.location()
	if err != nil {
		status, text := h.classify(ctx, err)
		return h.sendFrame(ctx, ws, errorFrame{Type: FrameError, Status: status, Error: text})
	}

	res, err := h.engine.ProcessTurn(ctx, engine.TurnRequest{
		SessionID: sessionID,
		Message:   msg.Message,
		Location:  loc,
	})
	if err != nil {
		status, text := h.classify(ctx, err)
		if !h.sendFrame(ctx, ws, errorFrame{Type: FrameError, Status: status, Error: text}) {
			return false
		}
		// The session is gone or closed; nothing further can succeed.
		return status != http.StatusNotFound && status != http.StatusPreconditionFailed
	}

	resp := h.turnResponse(res)
	for i, part := range res.Parts {
		frame := partFrame{Type: FramePart, Index: i, Text: part}
		if i < len(resp.PartsHTML) {
			frame.HTML = resp.PartsHTML[i]
		}
		if !h.sendFrame(ctx, ws, frame) {
			return false
		}
	}
	return h.sendFrame(ctx, ws, verdictFrame{Type: FrameVerdict, Result: resp})
}

func (h *Handler) sendFrame(ctx context.Context, ws *websocket.Conn, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode frame", "error", err)
		return false
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("WebSocket write failed", "error", err)
		return false
	}
	return true
}

// wsOriginPatterns converts configured origins into host patterns.
func (h *Handler) wsOriginPatterns() []string {
	if len(h.originPatterns) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(h.originPatterns))
	for _, o := range h.originPatterns {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		out = append(out, strings.ToLower(o))
	}
	return out
}
