package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
	"github.com/zhouzirui/apt-chat/backend/internal/handler"
	"github.com/zhouzirui/apt-chat/backend/internal/logging"
	"github.com/zhouzirui/apt-chat/backend/internal/model/persona"
	"github.com/zhouzirui/apt-chat/backend/internal/service/ai"
	"github.com/zhouzirui/apt-chat/backend/internal/service/assessment"
	"github.com/zhouzirui/apt-chat/backend/internal/service/chat"
	"github.com/zhouzirui/apt-chat/backend/internal/service/convlog"
	"github.com/zhouzirui/apt-chat/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Warn("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logging.Init(cfg.Server.LogLevel, cfg.Server.LogJSON)
	log := logging.Component("main")

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid production configuration")
	}

	personaStore := persona.NewMemoryStore(persona.Seed())

	aiService, err := ai.NewService(ctx, personaStore, cfg.AI)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize AI service")
	}
	if aiService.Enabled() {
		log.WithFields(logrus.Fields{"provider": cfg.AI.Provider, "model": cfg.AI.Model}).Info("AI service initialized")
	} else {
		log.Warn("model credentials not configured, chat replies will return 503 outside scripted scenarios")
	}

	locker, closeLocker, err := session.OpenLocker(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize session locks")
	}
	defer closeLocker()
	if cfg.Storage.RedisURL != "" {
		log.Info("using redis session locks")
	}

	sessionStore, err := session.NewStore(cfg.Storage.SessionDir, locker, logging.Component("session"))
	if err != nil {
		log.WithError(err).Fatal("failed to initialize session store")
	}

	flatLog := convlog.New(cfg.Storage.FlatLogPath, logging.Component("convlog"))

	chatService := chat.NewService(aiService, sessionStore, flatLog, chat.Limits{
		MaxLength: cfg.Server.MaxMessageLength,
		MinLength: cfg.Server.MinMessageLength,
	}, logging.Component("chat"))

	router := handler.NewRouter(cfg, handler.Deps{
		Personas:   personaStore,
		Chat:       chatService,
		Sessions:   sessionStore,
		Assessment: assessment.NewService(cfg.Features.AssessmentFile, cfg.Features.Assessment),
		Logger:     logger,
	})

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logrus.Entry) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithFields(logrus.Fields{"addr": addr, "env": serverCfg.Env}).Info("APT chat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
