package app

import (
	"context"
	"fmt"

	"ai-cycle-planner/internal/adaptation"
	"ai-cycle-planner/internal/aggregator"
	"ai-cycle-planner/internal/auth"
	"ai-cycle-planner/internal/config"
	"ai-cycle-planner/internal/database"
	"ai-cycle-planner/internal/health"
	"ai-cycle-planner/internal/llm"
	"ai-cycle-planner/internal/metrics"
	"ai-cycle-planner/internal/planner"
	"ai-cycle-planner/internal/planstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

// Runtime holds the wired dependencies of a running engine.
type Runtime struct {
	Config   *config.Config
	DB       *database.DB
	Health   *health.PostgresStore
	LLM      *llm.RetryingGenerator
	Registry *prometheus.Registry
	Usage    *metrics.Tracker
	Plans    *planstore.Store
	Adapter  *adaptation.Adapter
	Service  *Service
}

// NewRuntime opens the stores and the provider and wires the service.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	rt.DB = db

	hs, err := health.Open(ctx, cfg.HealthDatabaseURL)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to connect to health store: %w", err)
	}
	rt.Health = hs

	textGen, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	rt.LLM = textGen

	prices := llm.DefaultPriceTable()
	if cfg.PricingFile != "" {
		if prices, err = llm.LoadPriceTable(cfg.PricingFile); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Usage = metrics.NewTracker(db.SQL, rt.Registry)

	snapshots := aggregator.New(hs)
	engine := planner.NewEngine(textGen, prices, cfg.LLMModel)
	rt.Plans = planstore.NewStore(db.SQL, snapshots, engine, rt.Usage, cfg.InsightTTL)
	rt.Adapter = adaptation.NewAdapter(rt.Plans, snapshots, engine, rt.Usage, adaptation.NewEvaluator(nil))
	rt.Service = NewService(auth.NewVerifier(cfg.JWTSecret), auth.NewEntitlements(hs), rt.Plans, rt.Adapter, rt.Usage)

	log.WithFields(log.Fields{
		"provider": cfg.LLMProvider,
		"model":    cfg.LLMModel,
		"database": cfg.DatabasePath,
	}).Info("Plan engine initialized")
	return rt, nil
}

// Close releases everything NewRuntime opened.
func (r *Runtime) Close() {
	if r.LLM != nil {
		if err := r.LLM.Close(); err != nil {
			log.Warnf("Failed to close LLM client: %v", err)
		}
	}
	if r.Health != nil {
		r.Health.Close()
	}
	if r.DB != nil {
		r.DB.Close()
	}
}
