package admin

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/apt-chat/backend/internal/logging"
	"github.com/zhouzirui/apt-chat/backend/internal/model/chat"
	"github.com/zhouzirui/apt-chat/backend/pkg/utils"
)

const exportStamp = "20060102_150405"

// SessionExporter 管理端需要的会话存储能力
type SessionExporter interface {
	SessionFilePath(id string) (string, bool)
	ListSessions() (chat.Listing, error)
	ExportAll(ctx context.Context, outputPath string) (int, error)
}

// Options 管理端处理器配置
type Options struct {
	FlatLogPath  string
	PublicExport bool
	Debug        bool
	Now          func() time.Time
}

// Handler 管理端（日志下载、会话导出）HTTP处理器
type Handler struct {
	sessions SessionExporter
	opts     Options
}

// New 创建管理端处理器
func New(sessions SessionExporter, opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{sessions: sessions, opts: opts}
}

// RegisterRoutes 注册管理端路由；auth 只包裹需要认证的路由
func (h *Handler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Group(func(protected chi.Router) {
		protected.Use(auth)
		protected.Get("/download_logs", h.handleDownloadLogs)
		protected.Get("/download_session/{sessionID}", h.handleDownloadSession)
		protected.Get("/sessions", h.handleListSessions)
		protected.Get("/download_all_sessions", h.handleDownloadAll)
	})

	// 公开下载入口，可通过 FEATURE_SESSION_EXPORT 关闭
	r.Get("/download", h.handlePublicDownload)
}

func (h *Handler) handleDownloadLogs(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.opts.FlatLogPath); err != nil {
		utils.RespondError(w, http.StatusNotFound, "Log file not found")
		return
	}
	utils.ServeAttachment(w, r, h.opts.FlatLogPath, "conversations.log")
}

func (h *Handler) handleDownloadSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	path, ok := h.sessions.SessionFilePath(sessionID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	utils.ServeAttachment(w, r, path, "session_"+sessionID+".csv")
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	listing, err := h.sessions.ListSessions()
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("[admin] list sessions failed")
		utils.RespondInternal(w, err, h.opts.Debug)
		return
	}
	utils.RespondJSON(w, http.StatusOK, listing)
}

func (h *Handler) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	h.serveExport(w, r, "all_sessions_")
}

func (h *Handler) handlePublicDownload(w http.ResponseWriter, r *http.Request) {
	if !h.opts.PublicExport {
		utils.RespondError(w, http.StatusForbidden, "Session export is disabled")
		return
	}
	h.serveExport(w, r, "apt_session_data_")
}

// serveExport 导出到临时文件，响应发送完成后删除
func (h *Handler) serveExport(w http.ResponseWriter, r *http.Request, prefix string) {
	tmp, err := os.CreateTemp("", "apt-export-*.csv")
	if err != nil {
		utils.RespondInternal(w, err, h.opts.Debug)
		return
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			logging.FromContext(r.Context()).WithError(err).Warn("[admin] failed to remove export file")
		}
	}()

	count, err := h.sessions.ExportAll(r.Context(), tmpPath)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("[admin] export failed")
		utils.RespondInternal(w, err, h.opts.Debug)
		return
	}
	if count == 0 {
		utils.RespondError(w, http.StatusNotFound, "No session data found")
		return
	}

	utils.ServeAttachment(w, r, tmpPath, prefix+h.opts.Now().Format(exportStamp)+".csv")
}
