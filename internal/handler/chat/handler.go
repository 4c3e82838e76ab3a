package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/apt-chat/backend/internal/logging"
	"github.com/zhouzirui/apt-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/apt-chat/backend/internal/service/chat"
	"github.com/zhouzirui/apt-chat/backend/pkg/utils"
)

const greeting = "Hello world! from Go backend"

// Dispatcher 对话调度接口，由 chatService.Service 实现
type Dispatcher interface {
	Dispatch(ctx context.Context, req chatService.Request, sessionID, clientAddr string) (chatService.Result, error)
	EndSession(ctx context.Context, sessionID string) error
}

// CookieConfig 会话 cookie 设置
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc Dispatcher
	cookie  CookieConfig
	debug   bool
}

// New 创建聊天处理器
func New(chatSvc Dispatcher, cookie CookieConfig, debug bool) *Handler {
	if cookie.Name == "" {
		cookie.Name = "apt_session"
	}
	return &Handler{chatSvc: chatSvc, cookie: cookie, debug: debug}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleGreeting)
	r.Post("/", h.handleChat)
	r.Post("/end_session", h.handleEndSession)
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleGreeting(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": greeting})
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatService.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}

	result, err := h.chatSvc.Dispatch(r.Context(), payload, h.sessionID(r), ClientAddr(r))
	if err != nil {
		h.respondDispatchError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.SessionID)
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleEndSession 结束当前 cookie 对应的会话
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.EndSession(r.Context(), h.sessionID(r)); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("[chat] failed to end session")
		utils.RespondInternal(w, err, h.debug)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionID(r *http.Request) string {
	c, err := r.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) respondDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := StatusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("[chat] dispatch failed")
		utils.RespondInternal(w, err, h.debug)
		return
	}
	if status == http.StatusServiceUnavailable {
		logging.FromContext(r.Context()).WithFields(logrus.Fields{"error": err.Error()}).Warn("[chat] model unavailable")
	}
	utils.RespondError(w, status, message)
}

// StatusFor maps dispatcher errors to an HTTP status and a client message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrInvalidPersona), errors.Is(err, ai.ErrUnknownPersona):
		return http.StatusBadRequest, "Invalid chatbot type provided."
	case errors.Is(err, chatService.ErrMessageRequired):
		return http.StatusBadRequest, "Missing 'message' parameter."
	case errors.Is(err, chatService.ErrMessageTooShort):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable, "AI service is not configured"
	case errors.Is(err, ai.ErrUpstream):
		return http.StatusServiceUnavailable, "AI service is temporarily unavailable"
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}

// ClientAddr returns the caller's IP without port, or "Unknown".
func ClientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "Unknown"
	}
	return addr
}
