package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

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
	workerproc "smsgate/internal/worker"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{MaxConns: 10, MinConns: 2})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.SQSQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.SQSQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	healthMux := httpserver.New().Mux
	healthMux.HandleFunc("/healthz", httpserver.Healthz())
	healthMux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.SQSQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(healthMux),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	carrier := &gateway.Client{
		AccountSID: cfg.GatewayAccountSID,
		AuthToken:  cfg.GatewayAuthToken,
		HTTP:       &http.Client{Timeout: time.Duration(cfg.GatewayTimeoutSec) * time.Second},
		FromNumber: cfg.GatewayFromNumber,
		BaseURL:    cfg.GatewayBaseURL,
	}

	coordinator := &dispatch.Coordinator{
		Messages: store,
		Consents: store,
		Contacts: store,
		Carrier:  carrier,
		Limiter: &ratelimit.Limiter{
			Store: counter.New(rdb),
			Calc:  ratelimit.DefaultCalculator(),
		},
		Retries:        &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL},
		MaxRetries:     cfg.MaxRetries,
		GatewayTimeout: time.Duration(cfg.GatewayTimeoutSec) * time.Second,
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.GatewayRPSPerPod), cfg.GatewayBurst)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "carrier",
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})
	processor := &workerproc.Processor{
		Dispatcher: coordinator,
		Limiter:    limiter,
		Breaker:    cb,
	}

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.SQSQueueURL)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, job sqsqueue.RetryJob) (err error) {
			start := time.Now()
			slog.Info("retry job start", "message_id", job.MessageID, "attempt", job.Attempt)
			defer func() {
				if err != nil {
					slog.Info("retry job finish",
						"message_id", job.MessageID,
						"status", "error",
						"duration", time.Since(start),
						"err", err,
					)
				} else {
					slog.Info("retry job finish",
						"message_id", job.MessageID,
						"status", "ok",
						"duration", time.Since(start),
					)
				}
			}()
			err = processor.Process(ctx, job)
			return err
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}
