package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-cycle-planner/internal/adaptation"
	"ai-cycle-planner/internal/app"
	"ai-cycle-planner/internal/auth"
	"ai-cycle-planner/internal/metrics"
	"ai-cycle-planner/internal/planner"
	"ai-cycle-planner/internal/shared"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActions struct {
	err        error
	reason     string
	date       time.Time
	event      adaptation.Event
	weeklyHits int
}

func (f *fakeActions) Authenticate(token string) (auth.Principal, error) {
	if token != "Bearer good" {
		return auth.Principal{}, shared.E(shared.KindAuthentication, "auth.Verify", errors.New("bad token"))
	}
	return auth.Principal{UserID: "user-1"}, nil
}

func (f *fakeActions) GenerateWeeklyPlan(ctx context.Context, p auth.Principal) (app.PlanResult, error) {
	f.weeklyHits++
	if f.err != nil {
		return app.PlanResult{}, f.err
	}
	return app.PlanResult{Plan: &planner.WeeklyPlan{PlanID: "plan-1", UserID: p.UserID}, Cost: 0.02}, nil
}

func (f *fakeActions) GenerateDailyInsight(ctx context.Context, p auth.Principal, date time.Time) (app.InsightResult, error) {
	f.date = date
	return app.InsightResult{Insight: &planner.Insight{UserID: p.UserID}, Cached: true}, f.err
}

func (f *fakeActions) AdaptPlan(ctx context.Context, p auth.Principal, reason string) (adaptation.Result, error) {
	f.reason = reason
	return adaptation.Result{Adapted: true}, f.err
}

func (f *fakeActions) GetCurrentPlan(ctx context.Context, p auth.Principal) (*planner.WeeklyPlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &planner.WeeklyPlan{PlanID: "plan-1"}, nil
}

func (f *fakeActions) CheckAdaptation(ctx context.Context, p auth.Principal, ev adaptation.Event) (adaptation.Result, error) {
	f.event = ev
	return adaptation.Result{Decision: adaptation.Decision{ShouldAdapt: true, Reason: "workout skipped — redistribute weekly load"}}, f.err
}

func (f *fakeActions) Usage(ctx context.Context, p auth.Principal, days int) ([]metrics.UsageRecord, error) {
	return []metrics.UsageRecord{{UserID: p.UserID, Count: days}}, f.err
}

func newTestRouter(actions *fakeActions, perMinute int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(actions, Options{RateLimitPerMinute: perMinute, Gatherer: prometheus.NewRegistry()})
}

func do(r http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer good")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateWeeklyPlan(t *testing.T) {
	r := newTestRouter(&fakeActions{}, 0)

	w := do(r, http.MethodPost, "/v1/plans/weekly", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	var res app.PlanResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "plan-1", res.Plan.PlanID)
	assert.Equal(t, 0.02, res.Cost)
}

func TestUnauthenticated(t *testing.T) {
	actions := &fakeActions{}
	r := newTestRouter(actions, 0)

	w := do(r, http.MethodPost, "/v1/plans/weekly", "", false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, actions.weeklyHits)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		kind   shared.Kind
		status int
		body   string
	}{
		{shared.KindEntitlement, http.StatusPaymentRequired, `"upgrade_required":true`},
		{shared.KindValidation, http.StatusBadGateway, `"retryable":true`},
		{shared.KindProvider, http.StatusBadGateway, `"retryable":true`},
		{shared.KindNotFound, http.StatusNotFound, `"error"`},
		{shared.KindInternal, http.StatusInternalServerError, `"internal error"`},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			r := newTestRouter(&fakeActions{err: shared.E(tt.kind, "op", errors.New("upstream said 503: secret details"))}, 0)

			w := do(r, http.MethodPost, "/v1/plans/weekly", "", true)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "secret details")
		})
	}
}

func TestGenerateDailyInsight(t *testing.T) {
	actions := &fakeActions{}
	r := newTestRouter(actions, 0)

	w := do(r, http.MethodPost, "/v1/insights/daily", `{"date":"2026-03-05"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), actions.date)
	assert.Contains(t, w.Body.String(), `"cached":true`)

	w = do(r, http.MethodPost, "/v1/insights/daily", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, actions.date.IsZero())

	w = do(r, http.MethodPost, "/v1/insights/daily", `{"date":"March 5"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdaptPlan(t *testing.T) {
	actions := &fakeActions{}
	r := newTestRouter(actions, 0)

	w := do(r, http.MethodPost, "/v1/plans/current/adapt", `{"reason":"travelling"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "travelling", actions.reason)

	w = do(r, http.MethodPost, "/v1/plans/current/adapt", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckAdaptation(t *testing.T) {
	actions := &fakeActions{}
	r := newTestRouter(actions, 0)

	w := do(r, http.MethodPost, "/v1/adaptations/check", `{"id":"e1","table":"exercise_entries","event_type":"DELETE","old_record":{"id":"w1"}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "exercise_entries", actions.event.Table)
	assert.Equal(t, "e1", actions.event.ID)
	assert.Equal(t, "w1", actions.event.OldRecord["id"])
	assert.Contains(t, w.Body.String(), "workout skipped")

	w = do(r, http.MethodPost, "/v1/adaptations/check", `{"table":"meals"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentPlanAndUsage(t *testing.T) {
	r := newTestRouter(&fakeActions{}, 0)

	w := do(r, http.MethodGet, "/v1/plans/current", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"plan_id":"plan-1"`)

	w = do(r, http.MethodGet, "/v1/usage?days=3", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":3`)
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(&fakeActions{}, 2)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/v1/plans/weekly", "", true).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/v1/plans/weekly", "", true).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/v1/plans/weekly", "", true).Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/plans/current", "", true).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(&fakeActions{}, 0)

	w := do(r, http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"goroutines"`)

	w = do(r, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}
