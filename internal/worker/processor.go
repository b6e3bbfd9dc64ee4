// Package worker drains the retry queue and re-drives failed sends.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"smsgate/internal/domain"
	"smsgate/internal/gateway"
	sqsqueue "smsgate/internal/queue/sqs"
)

type Dispatcher interface {
	RetryMessage(ctx context.Context, tenantID, messageID string) (domain.Message, error)
}

// Processor handles one retry job at a time. The local limiter smooths
// carrier calls per pod; the breaker fails fast during a carrier outage and
// leaves jobs on the queue for redrive.
type Processor struct {
	Dispatcher Dispatcher
	Limiter    *rate.Limiter
	Breaker    *gobreaker.CircuitBreaker
}

func (p *Processor) Process(ctx context.Context, job sqsqueue.RetryJob) error {
	// FIFO queues have no per-message delay, so attempt backoff is applied
	// here before the redrive.
	if job.Attempt > 1 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gateway.Backoff(job.Attempt - 1)):
		}
	}

	if p.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			// No token in time; transient, let SQS redeliver.
			return err
		}
	}

	_, err := p.execute(ctx, job)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Do not touch the message; this is carrier protection, not a send result.
		slog.Warn("circuit breaker open, leaving retry job for redrive",
			"message_id", job.MessageID, "tenant_id", job.TenantID)
		return err
	}
	if err != nil {
		var gwErr *domain.GatewayError
		if errors.As(err, &gwErr) {
			// Retry ceiling reached; the message is persisted FAILED and the
			// job is complete.
			slog.Error("retry exhausted, message left failed",
				"message_id", job.MessageID, "tenant_id", job.TenantID, "err", err)
			return nil
		}
		return err
	}
	return nil
}

func (p *Processor) execute(ctx context.Context, job sqsqueue.RetryJob) (domain.Message, error) {
	call := func() (any, error) {
		return p.Dispatcher.RetryMessage(ctx, job.TenantID, job.MessageID)
	}
	if p.Breaker == nil {
		msg, err := p.Dispatcher.RetryMessage(ctx, job.TenantID, job.MessageID)
		return msg, err
	}
	res, err := p.Breaker.Execute(call)
	if err != nil {
		return domain.Message{}, err
	}
	return res.(domain.Message), nil
}
