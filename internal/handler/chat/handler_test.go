package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/apt-chat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/apt-chat/backend/internal/service/chat"
	"github.com/zhouzirui/apt-chat/backend/internal/service/session"
)

type stubReplier struct {
	reply string
	err   error
}

func (s stubReplier) Reply(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

func setupRouter(t *testing.T, replier chatservice.Replier) (*chi.Mux, *session.Store) {
	t.Helper()
	store, err := session.NewStore(t.TempDir(), nil, nil)
	require.NoError(t, err)

	svc := chatservice.NewService(replier, store, nil, chatservice.Limits{MaxLength: 1000, MinLength: 1}, nil)
	handler := New(svc, CookieConfig{Name: "apt_session"}, false)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func postChat(r http.Handler, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestGreeting(t *testing.T) {
	r, _ := setupRouter(t, stubReplier{reply: "ok"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	assert.Contains(t, resp.Body.String(), "Hello world!")
}

func TestChatSetsSessionCookie(t *testing.T) {
	r, store := setupRouter(t, stubReplier{reply: "hello back"})

	resp := postChat(r, `{"message": "hello", "chatbot_type": "ai", "risk_score": 5}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body chatservice.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "hello back", body.BotResponse)
	assert.True(t, session.ValidID(body.SessionID))

	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, body.SessionID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// Same cookie, same session.
	again := postChat(r, `{"message": "more", "chatbot_type": "ai"}`, cookies[0])
	require.Equal(t, http.StatusOK, again.Code)
	var next chatservice.Result
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &next))
	assert.Equal(t, body.SessionID, next.SessionID)

	listing, err := store.ListSessions()
	require.NoError(t, err)
	assert.Equal(t, []string{body.SessionID}, listing.Active)
}

func TestChatBadRequests(t *testing.T) {
	r, _ := setupRouter(t, stubReplier{reply: "ok"})

	cases := []string{
		`not json`,
		`{"chatbot_type": "ai"}`,
		`{"message": "hi"}`,
		`{"message": "hi", "chatbot_type": "pirate"}`,
	}
	for _, body := range cases {
		resp := postChat(r, body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.Code)
		}
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	r, _ := setupRouter(t, stubReplier{err: ai.ErrUpstream})
	resp := postChat(r, `{"message": "hello", "chatbot_type": "doctor"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	r, _ = setupRouter(t, stubReplier{err: ai.ErrNotConfigured})
	resp = postChat(r, `{"message": "hello", "chatbot_type": "doctor"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestEndSession(t *testing.T) {
	r, store := setupRouter(t, stubReplier{reply: "ok"})

	resp := postChat(r, `{"message": "hello", "chatbot_type": "student"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	cookie := resp.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodPost, "/end_session", bytes.NewReader(nil))
	req.AddCookie(cookie)
	end := httptest.NewRecorder()
	r.ServeHTTP(end, req)
	require.Equal(t, http.StatusNoContent, end.Code)

	listing, err := store.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, listing.Active)
	assert.Equal(t, []string{cookie.Value}, listing.Completed)

	// Ending without a session is harmless.
	end = httptest.NewRecorder()
	r.ServeHTTP(end, httptest.NewRequest(http.MethodPost, "/end_session", nil))
	assert.Equal(t, http.StatusNoContent, end.Code)
}

func TestWebSocketChat(t *testing.T) {
	r, store := setupRouter(t, stubReplier{reply: "ws reply"})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var first, second outgoingMessage
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message": "hi", "chatbot_type": "ai"}`)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "ws reply", first.BotResponse)
	require.True(t, session.ValidID(first.SessionID))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message": "again", "chatbot_type": "ai"}`)))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, first.SessionID, second.SessionID)

	var bad outgoingMessage
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message": "x", "chatbot_type": "nope"}`)))
	require.NoError(t, conn.ReadJSON(&bad))
	assert.NotEmpty(t, bad.Error)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	// The server ends the session once it sees the close.
	require.Eventually(t, func() bool {
		listing, err := store.ListSessions()
		return err == nil && len(listing.Completed) == 1 && listing.Completed[0] == first.SessionID
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.2:5555"
	assert.Equal(t, "192.168.1.2", ClientAddr(req))

	req.RemoteAddr = ""
	assert.Equal(t, "Unknown", ClientAddr(req))
}
