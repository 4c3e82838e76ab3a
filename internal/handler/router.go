package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
	"github.com/zhouzirui/apt-chat/backend/internal/handler/admin"
	"github.com/zhouzirui/apt-chat/backend/internal/handler/assessment"
	"github.com/zhouzirui/apt-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/apt-chat/backend/internal/handler/persona"
	middlewarePkg "github.com/zhouzirui/apt-chat/backend/internal/middleware"
	personaModel "github.com/zhouzirui/apt-chat/backend/internal/model/persona"
	assessmentService "github.com/zhouzirui/apt-chat/backend/internal/service/assessment"
	chatService "github.com/zhouzirui/apt-chat/backend/internal/service/chat"
	"github.com/zhouzirui/apt-chat/backend/pkg/utils"
)

// Deps 路由依赖的服务
type Deps struct {
	Personas   personaModel.Store
	Chat       *chatService.Service
	Sessions   admin.SessionExporter
	Assessment *assessmentService.Service
	Logger     *logrus.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if deps.Logger != nil {
		r.Use(middlewarePkg.RequestLogger(deps.Logger))
	}
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.CORSOrigins))
	if cfg.Server.SecurityHeaders {
		r.Use(middlewarePkg.SecurityHeaders(cfg.Server.CSP)...)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	chatHandler := chat.New(deps.Chat, chat.CookieConfig{
		Name:   cfg.Server.CookieName,
		Secure: cfg.Server.CookieSecure,
	}, cfg.Server.Debug)
	chatHandler.RegisterRoutes(r)

	adminHandler := admin.New(deps.Sessions, admin.Options{
		FlatLogPath:  cfg.Storage.FlatLogPath,
		PublicExport: cfg.Features.SessionExport,
		Debug:        cfg.Server.Debug,
	})
	adminHandler.RegisterRoutes(r, middlewarePkg.BasicAuth(cfg.Auth))

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		assessment.New(deps.Assessment).RegisterRoutes(api)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
