package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"smsgate/internal/domain"
	sqsqueue "smsgate/internal/queue/sqs"
)

type stubDispatcher struct {
	msg   domain.Message
	err   error
	calls int
}

func (s *stubDispatcher) RetryMessage(context.Context, string, string) (domain.Message, error) {
	s.calls++
	return s.msg, s.err
}

func job() sqsqueue.RetryJob {
	return sqsqueue.RetryJob{TenantID: "t1", MessageID: "msg_1", Attempt: 1}
}

func TestProcessSuccess(t *testing.T) {
	d := &stubDispatcher{msg: domain.Message{ID: "msg_1", Status: domain.StatusSent}}
	p := &Processor{Dispatcher: d}

	if err := p.Process(context.Background(), job()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if d.calls != 1 {
		t.Fatalf("expected 1 dispatch call, got %d", d.calls)
	}
}

func TestProcessGatewayErrorCompletesJob(t *testing.T) {
	d := &stubDispatcher{err: &domain.GatewayError{Code: "30007", Err: errors.New("carrier rejected")}}
	p := &Processor{Dispatcher: d}

	// Ceiling-reached failures are final: the job must not redrive.
	if err := p.Process(context.Background(), job()); err != nil {
		t.Fatalf("expected nil for exhausted retry, got %v", err)
	}
}

func TestProcessBacksOffLaterAttempts(t *testing.T) {
	d := &stubDispatcher{msg: domain.Message{ID: "msg_1", Status: domain.StatusSent}}
	p := &Processor{Dispatcher: d}

	j := job()
	j.Attempt = 2
	start := time.Now()
	if err := p.Process(context.Background(), j); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 600*time.Millisecond {
		t.Fatalf("expected attempt 2 paced by backoff, finished in %v", elapsed)
	}
	if d.calls != 1 {
		t.Fatalf("expected 1 dispatch call, got %d", d.calls)
	}
}

func TestProcessBackoffHonorsCancellation(t *testing.T) {
	d := &stubDispatcher{}
	p := &Processor{Dispatcher: d}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j := job()
	j.Attempt = 3
	if err := p.Process(ctx, j); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if d.calls != 0 {
		t.Fatalf("dispatcher called after cancellation")
	}
}

func TestProcessInfraErrorRedrives(t *testing.T) {
	d := &stubDispatcher{err: errors.New("db down")}
	p := &Processor{Dispatcher: d}

	if err := p.Process(context.Background(), job()); err == nil {
		t.Fatalf("expected error for infra failure so SQS redelivers")
	}
}
