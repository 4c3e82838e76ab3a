package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/apt-chat/backend/internal/logging"
	chatService "github.com/zhouzirui/apt-chat/backend/internal/service/chat"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type outgoingMessage struct {
	BotResponse string `json:"bot_response,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// handleWebSocket 每个文本帧是一次 POST / 请求体；连接关闭时结束会话
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientAddr := ClientAddr(r)
	sessionID := h.sessionID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := logging.FromContext(ctx).WithField("remote", clientAddr)
	log.Info("[websocket] new connection")

	defer func() {
		// 请求上下文此时已取消，用独立的上下文完成收尾
		endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer endCancel()
		if err := h.chatSvc.EndSession(endCtx, sessionID); err != nil {
			log.WithError(err).Error("[websocket] failed to end session")
		}
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("[websocket] read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var req chatService.Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.send(conn, log, outgoingMessage{Error: "Invalid JSON payload."})
			continue
		}

		result, err := h.chatSvc.Dispatch(ctx, req, sessionID, clientAddr)
		if err != nil {
			status, message := StatusFor(err)
			if status == http.StatusInternalServerError {
				log.WithError(err).Error("[websocket] dispatch failed")
				if h.debug {
					message = "Unexpected error: " + err.Error()
				}
			}
			h.send(conn, log, outgoingMessage{Error: message})
			continue
		}

		sessionID = result.SessionID
		h.send(conn, log, outgoingMessage{BotResponse: result.BotResponse, SessionID: result.SessionID})
	}
}

func (h *Handler) send(conn *websocket.Conn, log *logrus.Entry, msg outgoingMessage) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.WithError(err).Warn("[websocket] write failed")
	}
}

// pingLoop 定期发送ping消息；WriteControl 可与 WriteJSON 并发调用
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
