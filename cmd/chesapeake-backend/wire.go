package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chesapeake-backend/internal/config"
	"chesapeake-backend/internal/infrastructure/cache"
	"chesapeake-backend/internal/infrastructure/events"
	"chesapeake-backend/internal/infrastructure/mailer"
	"chesapeake-backend/internal/infrastructure/repo"
	"chesapeake-backend/internal/infrastructure/stripepay"
	"chesapeake-backend/internal/server"
	"chesapeake-backend/internal/usecase"
)

// stores is the full set of persistence interfaces one backend provides.
type stores interface {
	usecase.OrderRepo
	usecase.CounterRepo
	usecase.ProductRepo
	usecase.CustomOrderRepo
	usecase.BackfillRepo
}

type app struct {
	stores   stores
	db       server.Pinger
	recon    *usecase.ReconcileService
	backfill *usecase.BackfillService
	provider usecase.PaymentProvider
	cache    server.EventCache
	closers  []func() error
}

func (a *app) Close(log *zap.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("shutdown step failed", zap.Error(err))
		}
	}
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, server.Pinger, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return repo.NewMemoryRepo(), nil, func() error { return nil }, nil
	}
	pg, err := repo.NewPostgresRepo(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("database connection established")
	return pg, pg, pg.Close, nil
}

func buildApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	st, db, closeDB, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{stores: st, db: db, closers: []func() error{closeDB}}

	var provider usecase.PaymentProvider
	if cfg.WebhookReady() {
		provider = stripepay.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		log.Warn("stripe secrets not configured, webhook will answer 500")
	}
	a.provider = provider

	var notifier usecase.Notifier = mailer.LogNotifier{Log: log}
	if cfg.EmailAPIKey != "" {
		notifier = &mailer.Notifier{
			Sender:     &mailer.Client{BaseURL: cfg.EmailAPIURL, APIKey: cfg.EmailAPIKey},
			From:       cfg.EmailFrom,
			OwnerEmail: cfg.OwnerEmail,
			SiteURL:    cfg.SiteURL,
			Log:        log,
		}
	}

	var publisher usecase.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			a.Close(log)
			return nil, err
		}
		p := &events.Publisher{Producer: producer, Topic: cfg.KafkaTopic, Log: log}
		a.closers = append(a.closers, p.Close)
		publisher = p
		log.Info("Kafka producer initialized", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close(log)
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		a.cache = &cache.EventCache{RDB: rdb, TTL: cfg.EventCacheTTL}
		log.Info("Redis connection established")
	}

	a.recon = &usecase.ReconcileService{
		Orders:       st,
		Products:     st,
		CustomOrders: st,
		DisplayIDs:   &usecase.DisplayIDs{Counters: st},
		Provider:     provider,
		Notifier:     notifier,
		Events:       publisher,
		Log:          log,
	}
	a.backfill = &usecase.BackfillService{Repo: st, Log: log}
	return a, nil
}

func startupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func describe(cfg config.Config) []zap.Field {
	return []zap.Field{
		zap.Int("port", cfg.Port),
		zap.Bool("database", cfg.DatabaseURL != ""),
		zap.Bool("webhook_ready", cfg.WebhookReady()),
		zap.Bool("email", cfg.EmailAPIKey != ""),
		zap.Bool("kafka", len(cfg.KafkaBrokers) > 0),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Bool("tracing", cfg.TracingEndpoint != ""),
		zap.String("addr", fmt.Sprintf(":%d", cfg.Port)),
	}
}
