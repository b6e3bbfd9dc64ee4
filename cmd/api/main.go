package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"smsgate/internal/awsutil"
	"smsgate/internal/config"
	"smsgate/internal/counter"
	"smsgate/internal/dispatch"
	"smsgate/internal/gateway"
	"smsgate/internal/httpserver"
	"smsgate/internal/logging"
	"smsgate/internal/observability"
	sqsqueue "smsgate/internal/queue/sqs"
	"smsgate/internal/ratelimit"
	"smsgate/internal/store/pg"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{MaxConns: 10, MinConns: 2})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("api sqs client init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	store := pg.New(db)
	limiter := &ratelimit.Limiter{
		Store: counter.New(rdb),
		Calc:  ratelimit.DefaultCalculator(),
		Tiers: func(tenantID string) ratelimit.Tier {
			tier, err := store.TenantTier(context.Background(), tenantID)
			if err != nil {
				slog.Warn("tenant tier lookup failed, assuming free", "tenant_id", tenantID, "err", err)
				return ratelimit.TierFree
			}
			return ratelimit.Tier(tier)
		},
	}

	carrier := &gateway.Client{
		AccountSID: cfg.GatewayAccountSID,
		AuthToken:  cfg.GatewayAuthToken,
		HTTP:       &http.Client{Timeout: time.Duration(cfg.GatewayTimeoutSec) * time.Second},
		FromNumber: cfg.GatewayFromNumber,
		BaseURL:    cfg.GatewayBaseURL,
	}

	coordinator := &dispatch.Coordinator{
		Messages:          store,
		Consents:          store,
		Contacts:          store,
		Carrier:           carrier,
		Limiter:           limiter,
		Retries:           &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL},
		RequireTxnConsent: cfg.RequireTxnConsent,
		MaxRetries:        cfg.MaxRetries,
		GatewayTimeout:    time.Duration(cfg.GatewayTimeoutSec) * time.Second,
		DefaultRegion:     cfg.DefaultRegion,
	}

	s := httpserver.New()
	api := &httpserver.API{
		Dispatcher: coordinator,
		Messages:   store,
		Limiter:    limiter,
	}
	api.Register(s.Mux)

	wh := &httpserver.Webhook{Receiver: coordinator}
	if cfg.PublicWebhookURL != "" {
		wh.VerifySignature = gateway.VerifySignature
		wh.AuthToken = cfg.GatewayAuthToken
		wh.PublicURL = cfg.PublicWebhookURL
	}
	wh.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(ctx context.Context) error { return db.Ping(ctx) },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	))

	handler := httpserver.Metrics(observability.APIRequests)(httpserver.Logging(s.Mux))
	srv := s.HTTPServer(":" + cfg.Port)
	srv.Handler = handler

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
	_ = rdb.Close()
}
