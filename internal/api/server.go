// Package api exposes the plan engine over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ai-cycle-planner/internal/adaptation"
	"ai-cycle-planner/internal/app"
	"ai-cycle-planner/internal/auth"
	"ai-cycle-planner/internal/metrics"
	"ai-cycle-planner/internal/planner"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const principalKey = "principal"

// Actions is the service surface the handlers call.
type Actions interface {
	Authenticate(token string) (auth.Principal, error)
	GenerateWeeklyPlan(ctx context.Context, p auth.Principal) (app.PlanResult, error)
	GenerateDailyInsight(ctx context.Context, p auth.Principal, date time.Time) (app.InsightResult, error)
	AdaptPlan(ctx context.Context, p auth.Principal, reason string) (adaptation.Result, error)
	GetCurrentPlan(ctx context.Context, p auth.Principal) (*planner.WeeklyPlan, error)
	CheckAdaptation(ctx context.Context, p auth.Principal, ev adaptation.Event) (adaptation.Result, error)
	Usage(ctx context.Context, p auth.Principal, days int) ([]metrics.UsageRecord, error)
}

// Options configures the router.
type Options struct {
	RateLimitPerMinute int
	DatabasePath       string
	Gatherer           prometheus.Gatherer
}

type handler struct {
	actions Actions
	dbPath  string
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(actions Actions, opts Options) *gin.Engine {
	h := &handler{actions: actions, dbPath: opts.DatabasePath}
	limiter := NewRateLimiter(opts.RateLimitPerMinute)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.health)
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1", h.authenticate)
	v1.GET("/plans/current", h.currentPlan)
	v1.GET("/usage", h.usage)

	gen := v1.Group("", limiter.Middleware())
	gen.POST("/plans/weekly", h.generateWeeklyPlan)
	gen.POST("/insights/daily", h.generateDailyInsight)
	gen.POST("/plans/current/adapt", h.adaptPlan)
	gen.POST("/adaptations/check", h.checkAdaptation)

	return r
}

func (h *handler) authenticate(c *gin.Context) {
	p, err := h.actions.Authenticate(c.GetHeader("Authorization"))
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	c.Set(principalKey, p)
	c.Next()
}

func principal(c *gin.Context) auth.Principal {
	p, _ := c.Get(principalKey)
	pp, _ := p.(auth.Principal)
	return pp
}

func (h *handler) generateWeeklyPlan(c *gin.Context) {
	res, err := h.actions.GenerateWeeklyPlan(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) currentPlan(c *gin.Context) {
	plan, err := h.actions.GetCurrentPlan(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type insightRequest struct {
	Date string `json:"date"`
}

func (h *handler) generateDailyInsight(c *gin.Context) {
	var req insightRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	var date time.Time
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = d
	}

	res, err := h.actions.GenerateDailyInsight(c.Request.Context(), principal(c), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type adaptRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *handler) adaptPlan(c *gin.Context) {
	var req adaptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	res, err := h.actions.AdaptPlan(c.Request.Context(), principal(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type checkRequest struct {
	ID        string         `json:"id"`
	Table     string         `json:"table" binding:"required"`
	EventType string         `json:"event_type" binding:"required"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

func (h *handler) checkAdaptation(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "table and event_type are required"})
		return
	}

	res, err := h.actions.CheckAdaptation(c.Request.Context(), principal(c), adaptation.Event{
		ID:         req.ID,
		Table:      req.Table,
		EventType:  req.EventType,
		Record:     req.Record,
		OldRecord:  req.OldRecord,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) usage(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	records, err := h.actions.Usage(c.Request.Context(), principal(c), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": records})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"system": metrics.GetSysHealth(h.dbPath),
	})
}
