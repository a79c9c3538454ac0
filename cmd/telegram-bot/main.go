package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-cycle-planner/internal/app"
	"ai-cycle-planner/internal/config"
	"ai-cycle-planner/internal/logging"
	"ai-cycle-planner/internal/telegram"

	log "github.com/sirupsen/logrus"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	ctx := context.Background()

	// 2. Wire stores, provider and service
	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer rt.Close()

	sessions := telegram.NewSessionRepository(rt.DB.SQL)
	if n, err := sessions.CleanupExpired(ctx); err != nil {
		log.Warnf("Failed to clean up sessions: %v", err)
	} else if n > 0 {
		log.Infof("Removed %d expired sessions", n)
	}

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, rt.Service, sessions)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	// 4. Start Server with Graceful Shutdown
	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Telegram Bot Server listening on port %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exiting")
}
