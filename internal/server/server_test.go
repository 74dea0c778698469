package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"chesapeake-backend/internal/config"
	"chesapeake-backend/internal/domain"
	"chesapeake-backend/internal/usecase"
)

type stubProvider struct {
	ev  domain.WebhookEvent
	err error
}

func (p *stubProvider) VerifyEvent([]byte, string) (domain.WebhookEvent, error) {
	return p.ev, p.err
}

func (p *stubProvider) RetrieveCheckoutSession(context.Context, string) (*domain.CheckoutSession, error) {
	return nil, errors.New("unused")
}

type stubReconciler struct {
	calls int
	res   usecase.Result
	err   error
}

func (r *stubReconciler) HandleEvent(context.Context, domain.WebhookEvent) (usecase.Result, error) {
	r.calls++
	return r.res, r.err
}

type mapCache struct {
	seen map[string]string
}

func (m *mapCache) Seen(_ context.Context, id string) (bool, error) {
	_, ok := m.seen[id]
	return ok, nil
}

func (m *mapCache) Remember(_ context.Context, id, outcome string) error {
	m.seen[id] = outcome
	return nil
}

type stubBackfill struct {
	n   int
	err error
}

func (b stubBackfill) BackfillDisplayIDs(context.Context) (int, error) {
	return b.n, b.err
}

func readyConfig() config.Config {
	c := config.Default()
	c.StripeSecretKey = "sk_test"
	c.StripeWebhookSecret = "whsec_test"
	return c
}

func setup(t *testing.T, cfg config.Config, deps Deps) http.Handler {
	gin.SetMode(gin.TestMode)
	if deps.Log == nil {
		deps.Log = zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	}
	return New(cfg, deps).Handler()
}

func postWebhook(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	req.Header.Set("X-Request-Id", "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func completedEvent() domain.WebhookEvent {
	return domain.WebhookEvent{ID: "evt_1", Type: domain.EventCheckoutCompleted, SessionID: "cs_1"}
}

func TestWebhookNotConfigured(t *testing.T) {
	rec := &stubReconciler{}
	h := setup(t, config.Default(), Deps{Provider: &stubProvider{}, Reconciler: rec})

	w := postWebhook(h)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_CONFIGURED", errObj["code"])
	assert.Equal(t, "req-1", errObj["requestId"])
	assert.Zero(t, rec.calls)
}

func TestWebhookBadSignature(t *testing.T) {
	rec := &stubReconciler{}
	h := setup(t, readyConfig(), Deps{
		Provider:   &stubProvider{err: errors.Join(usecase.ErrInvalidSignature, errors.New("no match"))},
		Reconciler: rec,
	})

	w := postWebhook(h)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", decode(t, w)["error"].(map[string]any)["code"])
	assert.Zero(t, rec.calls)
}

func TestWebhookCreated(t *testing.T) {
	rec := &stubReconciler{res: usecase.Result{Outcome: usecase.OutcomeCreated, Kind: "standard"}}
	h := setup(t, readyConfig(), Deps{Provider: &stubProvider{ev: completedEvent()}, Reconciler: rec})

	w := postWebhook(h)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "created", body["outcome"])
}

func TestWebhookReconcileFailureIsRetryable(t *testing.T) {
	rec := &stubReconciler{err: errors.New("insert order: connection refused")}
	h := setup(t, readyConfig(), Deps{Provider: &stubProvider{ev: completedEvent()}, Reconciler: rec})

	w := postWebhook(h)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "RECONCILE_FAILED", decode(t, w)["error"].(map[string]any)["code"])
}

func TestWebhookEventCacheShortCircuits(t *testing.T) {
	rec := &stubReconciler{res: usecase.Result{Outcome: usecase.OutcomeCreated}}
	cache := &mapCache{seen: map[string]string{}}
	h := setup(t, readyConfig(), Deps{Provider: &stubProvider{ev: completedEvent()}, Reconciler: rec, Cache: cache})

	w := postWebhook(h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "created", cache.seen["evt_1"])

	w = postWebhook(h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["outcome"])
	assert.Equal(t, 1, rec.calls)
}

func TestWebhookFailureIsNotCached(t *testing.T) {
	rec := &stubReconciler{err: errors.New("boom")}
	cache := &mapCache{seen: map[string]string{}}
	h := setup(t, readyConfig(), Deps{Provider: &stubProvider{ev: completedEvent()}, Reconciler: rec, Cache: cache})

	postWebhook(h)
	assert.Empty(t, cache.seen)
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	h := setup(t, readyConfig(), Deps{Provider: &stubProvider{ev: completedEvent()}, Reconciler: &stubReconciler{}})
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(make([]byte, maxWebhookBody+10)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHealth(t *testing.T) {
	h := setup(t, config.Default(), Deps{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := setup(t, config.Default(), Deps{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func adminDeps(b Backfiller) Deps {
	return Deps{
		Auth:     &usecase.AdminAuthService{Password: "oyster", JWTSecret: "secret", TTL: time.Hour},
		Backfill: b,
	}
}

func login(t *testing.T, h http.Handler, password string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdminBackfillFlow(t *testing.T) {
	h := setup(t, config.Default(), adminDeps(stubBackfill{n: 3}))

	w := login(t, h, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = login(t, h, "oyster")
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/orders/backfill-display-ids", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/orders/backfill-display-ids", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["assigned"])
}

func TestAdminBackfillFailure(t *testing.T) {
	h := setup(t, config.Default(), adminDeps(stubBackfill{err: errors.New("rolled back")}))
	token := decode(t, login(t, h, "oyster"))["token"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/orders/backfill-display-ids", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminDisabled(t *testing.T) {
	h := setup(t, config.Default(), Deps{})
	assert.Equal(t, http.StatusNotFound, login(t, h, "x").Code)
}
