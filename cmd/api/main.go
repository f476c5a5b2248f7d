package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"contacthub-auth/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	backend, err := core.OpenSessionBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open session backend", zap.String("backend", cfg.SessionBackend), zap.Error(err))
	}
	defer backend.Close()

	codec, err := core.NewTokenCodec(cfg)
	if err != nil {
		logger.Fatal("failed to build token codec", zap.Error(err))
	}
	if cfg.TokenCodec != "signed" {
		logger.Warn("opaque token codec in use; tokens are not tamper-evident")
	}

	directory, err := core.NewDemoDirectory(cfg.BcryptCost)
	if err != nil {
		logger.Fatal("failed to seed identity directory", zap.Error(err))
	}

	provider := core.NewLocalAuthProvider(directory,
		core.WithSessionTable(backend.Table),
		core.WithTokenCodec(codec),
		core.WithSessionDuration(cfg.SessionDuration),
		core.WithLogger(logger.Named("auth")),
	)

	// Cookie session carries the bearer token for browser clients.
	cookies := sessions.NewCookieStore([]byte(cfg.SessionKey))

	router := core.NewRouter(cfg, core.RouterDeps{
		Auth:     provider,
		Sessions: core.NewSessionManager(backend.Data),
		Cookies:  cookies,
		Backend:  backend,
		Logger:   logger.Named("http"),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting api server",
		zap.String("addr", server.Addr),
		zap.String("session_backend", backend.Name),
		zap.String("token_codec", cfg.TokenCodec))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
