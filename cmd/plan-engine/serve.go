package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ai-cycle-planner/internal/adaptation"
	"ai-cycle-planner/internal/api"
	"ai-cycle-planner/internal/app"
	"ai-cycle-planner/internal/config"
	"ai-cycle-planner/internal/logging"
	"ai-cycle-planner/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the adaptation consumer and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
				return err
			}
			defer logging.Close()
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(rt.Service, api.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DatabasePath:       cfg.DatabasePath,
		Gatherer:           rt.Registry,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infof("HTTP API listening on port %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("plan-engine"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Drain()

		consumer, err := adaptation.NewConsumer(nc, adaptation.ConsumerConfig{
			Stream:  cfg.NATSStream,
			Subject: cfg.NATSSubject,
			Durable: cfg.NATSConsumer,
		}, rt.Adapter)
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	} else {
		log.Info("NATS_URL not set, event-driven adaptation disabled")
	}

	if cfg.AutoGenerateSchedule != "" {
		sched, err := scheduler.New(cfg.AutoGenerateSchedule, rt.Health, rt.Service)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-errCh:
		log.Errorf("Fatal component error: %v", err)
		stop()
		shutdown(srv)
		return err
	}

	shutdown(srv)
	log.Info("Server exiting")
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
}
