package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chesapeake-backend/internal/config"
	"chesapeake-backend/internal/domain"
	"chesapeake-backend/internal/metrics"
	"chesapeake-backend/internal/usecase"
)

const maxWebhookBody = 1 << 20

type Reconciler interface {
	HandleEvent(ctx context.Context, ev domain.WebhookEvent) (usecase.Result, error)
}

type Backfiller interface {
	BackfillDisplayIDs(ctx context.Context) (int, error)
}

// EventCache short-circuits webhook events that were already reconciled.
type EventCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID, outcome string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Reconciler Reconciler
	Provider   usecase.PaymentProvider
	Backfill   Backfiller
	Auth       *usecase.AdminAuthService
	Cache      EventCache
	DB         Pinger
	Log        *zap.Logger
}

type Server struct {
	cfg    config.Config
	deps   Deps
	log    *zap.Logger
	engine *gin.Engine
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, deps: deps, log: log, engine: gin.New()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("chesapeake-backend"))
	r.Use(LoggerMiddleware(s.log))
	r.Use(metrics.Middleware())
	r.Use(s.cors())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", metrics.Handler())
	r.POST("/api/stripe/webhook", s.handleWebhook)

	admin := r.Group("/api/admin")
	admin.POST("/login", s.handleAdminLogin)
	admin.POST("/orders/backfill-display-ids", s.adminAuth(), s.handleBackfill)
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if s.cfg.SiteURL != "" {
			origin = s.cfg.SiteURL
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.log.Warn("health check database ping failed", zap.Error(err))
			s.err(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database unreachable")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleWebhook(c *gin.Context) {
	if !s.cfg.WebhookReady() || s.deps.Provider == nil || s.deps.Reconciler == nil {
		s.log.Error("stripe webhook called without stripe configuration")
		s.err(c, http.StatusInternalServerError, "NOT_CONFIGURED", "stripe webhook is not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		s.err(c, http.StatusBadRequest, "BAD_REQUEST", "could not read body")
		return
	}
	if len(body) > maxWebhookBody {
		s.err(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "webhook body exceeds 1 MiB")
		return
	}

	ev, err := s.deps.Provider.VerifyEvent(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		var br usecase.ErrBadRequest
		switch {
		case errors.Is(err, usecase.ErrInvalidSignature):
			s.log.Warn("webhook signature verification failed", zap.Error(err))
			s.err(c, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature verification failed")
		case errors.As(err, &br):
			s.err(c, http.StatusBadRequest, "BAD_REQUEST", br.Error())
		default:
			s.err(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		}
		metrics.RecordWebhookEvent("unverified", "rejected")
		return
	}

	ctx := c.Request.Context()
	log := s.log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	if s.deps.Cache != nil && ev.ID != "" {
		seen, err := s.deps.Cache.Seen(ctx, ev.ID)
		if err != nil {
			log.Warn("event cache lookup failed, falling back to order guard", zap.Error(err))
		} else if seen {
			log.Info("webhook event already processed")
			metrics.RecordWebhookEvent(ev.Type, string(usecase.OutcomeDuplicate))
			c.JSON(http.StatusOK, gin.H{"received": true, "outcome": usecase.OutcomeDuplicate})
			return
		}
	}

	res, err := s.deps.Reconciler.HandleEvent(ctx, ev)
	if err != nil {
		metrics.RecordWebhookEvent(ev.Type, "error")
		var br usecase.ErrBadRequest
		if errors.As(err, &br) {
			log.Warn("webhook event rejected", zap.Error(err))
			s.err(c, http.StatusBadRequest, "BAD_REQUEST", br.Error())
			return
		}
		log.Error("reconciliation failed", zap.Error(err))
		s.err(c, http.StatusInternalServerError, "RECONCILE_FAILED", "order reconciliation failed")
		return
	}

	metrics.RecordWebhookEvent(ev.Type, string(res.Outcome))
	if res.Outcome == usecase.OutcomeCreated {
		metrics.RecordOrderCreated(res.Kind)
	}
	if s.deps.Cache != nil && ev.ID != "" && res.Outcome != usecase.OutcomeIgnored {
		if err := s.deps.Cache.Remember(ctx, ev.ID, string(res.Outcome)); err != nil {
			log.Warn("failed to remember processed event", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome})
}

type loginReq struct {
	Password string `json:"password"`
}

func (s *Server) handleAdminLogin(c *gin.Context) {
	if s.deps.Auth == nil || !s.deps.Auth.Enabled() {
		s.err(c, http.StatusNotFound, "NOT_FOUND", "admin endpoints are disabled")
		return
	}
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		s.err(c, http.StatusBadRequest, "BAD_REQUEST", "password is required")
		return
	}
	token, exp, err := s.deps.Auth.Login(req.Password)
	if err != nil {
		s.log.Warn("admin login rejected", zap.String("ip", c.ClientIP()))
		s.err(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": exp.UTC().Format(time.RFC3339)})
}

func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Auth == nil || !s.deps.Auth.Enabled() {
			s.err(c, http.StatusNotFound, "NOT_FOUND", "admin endpoints are disabled")
			c.Abort()
			return
		}
		h := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || s.deps.Auth.Verify(strings.TrimSpace(token)) != nil {
			s.err(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleBackfill(c *gin.Context) {
	if s.deps.Backfill == nil {
		s.err(c, http.StatusNotFound, "NOT_FOUND", "backfill unavailable")
		return
	}
	n, err := s.deps.Backfill.BackfillDisplayIDs(c.Request.Context())
	if err != nil {
		s.log.Error("display id backfill failed", zap.Error(err))
		s.err(c, http.StatusInternalServerError, "BACKFILL_FAILED", "display id backfill failed, nothing was changed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"assigned": n})
}

func (s *Server) err(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   msg,
			"requestId": c.GetHeader("X-Request-Id"),
		},
	})
}
