// Package dispatch coordinates outbound sends and inbound webhook intake
// across the consent engine, rate limiter, message store, and carrier
// gateway.
package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"smsgate/internal/consent"
	"smsgate/internal/domain"
	"smsgate/internal/gateway"
	"smsgate/internal/lifecycle"
	"smsgate/internal/observability"
	sqsqueue "smsgate/internal/queue/sqs"
	"smsgate/internal/ratelimit"
	"smsgate/internal/store"
	"smsgate/internal/util"
)

type MessageStore interface {
	InsertMessage(ctx context.Context, m domain.Message) error
	GetMessage(ctx context.Context, id string) (domain.Message, bool, error)
	FindMessageByExternalID(ctx context.Context, tenantID, externalID string) (domain.Message, bool, error)
	UpdateMessageStatus(ctx context.Context, m domain.Message, from domain.Status) (bool, error)
}

type ConsentStore interface {
	GetConsent(ctx context.Context, tenantID, phone string, typ consent.Type) (consent.Record, bool, error)
	SaveConsent(ctx context.Context, tenantID string, r consent.Record, expectedVersion int) (bool, error)
}

type ContactDirectory interface {
	FindContactByPhone(ctx context.Context, tenantID, phone string) (store.Contact, bool, error)
}

type Gateway interface {
	Send(ctx context.Context, req gateway.SendRequest) (gateway.SendResponse, int, []byte, error)
}

type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, tenantID, messageType string) ratelimit.Result
}

type RetryQueue interface {
	EnqueueRetry(ctx context.Context, job sqsqueue.RetryJob) error
}

type Coordinator struct {
	Messages MessageStore
	Consents ConsentStore
	Contacts ContactDirectory
	Carrier  Gateway
	Limiter  RateLimiter
	Retries  RetryQueue

	// RequireTxnConsent gates transactional sends on consent too. Marketing
	// sends are always gated.
	RequireTxnConsent bool
	// MaxRetries is the attempt ceiling before a gateway failure stops being
	// re-queued and is surfaced to the caller instead.
	MaxRetries int
	// GatewayTimeout bounds each carrier call. Zero means no extra bound
	// beyond the caller's context.
	GatewayTimeout time.Duration
	// DefaultRegion seeds phone normalization for numbers without a country
	// prefix.
	DefaultRegion string
}

// SendOutbound runs the full outbound pipeline: consent gate, rate limit,
// persist, carrier send. The returned message reflects the final persisted
// status; a gateway failure below the retry ceiling returns the FAILED
// message with a nil error because a retry has been queued on the caller's
// behalf.
func (c *Coordinator) SendOutbound(ctx context.Context, req domain.OutboundRequest) (domain.Message, error) {
	if err := req.Validate(); err != nil {
		return domain.Message{}, err
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = "sms"
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = domain.PurposeTransactional
	}

	// Normalization failure is tolerated: consent is then keyed on the raw
	// number, which matches whatever the tenant stored for it.
	toPhone := req.To
	if normalized, err := util.NormalizePhone(req.To, c.DefaultRegion); err == nil {
		toPhone = normalized
	}

	if err := c.checkConsent(ctx, req.TenantID, toPhone, purpose); err != nil {
		return domain.Message{}, err
	}

	rl := c.Limiter.CheckAndIncrement(ctx, req.TenantID, messageType)
	if !rl.Allowed {
		return domain.Message{}, &domain.RateLimitExceededError{
			LimitType: rl.LimitType,
			ResetTime: rl.ResetTime,
		}
	}

	now := util.NowUTC()
	msg := domain.Message{
		ID:        util.NewMessageID(),
		TenantID:  req.TenantID,
		Direction: domain.DirectionOutbound,
		Channel:   messageType,
		Body:      req.Body,
		FromPhone: req.From,
		ToPhone:   toPhone,
		Status:    domain.StatusQueued,
		ContactID: req.ContactID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Messages.InsertMessage(ctx, msg); err != nil {
		return domain.Message{}, err
	}

	return c.attemptSend(ctx, msg)
}

// attemptSend drives one QUEUED message through SENDING to SENT or FAILED.
// Shared by the initial send and the retry worker.
func (c *Coordinator) attemptSend(ctx context.Context, msg domain.Message) (domain.Message, error) {
	sending, err := lifecycle.Apply(msg, domain.StatusSending, util.NowUTC())
	if err != nil {
		return msg, err
	}
	ok, err := c.Messages.UpdateMessageStatus(ctx, sending, msg.Status)
	if err != nil {
		return msg, err
	}
	if !ok {
		// Another writer moved the message; report the conflict.
		return msg, &lifecycle.InvalidTransitionError{From: msg.Status, To: domain.StatusSending}
	}
	msg = sending

	sendCtx := ctx
	if c.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.GatewayTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, httpStatus, _, sendErr := c.Carrier.Send(sendCtx, gateway.SendRequest{
		From: msg.FromPhone,
		To:   msg.ToPhone,
		Body: msg.Body,
	})
	observability.GatewayLatency.Observe(time.Since(start).Seconds())

	if sendErr == nil {
		observability.GatewaySend.WithLabelValues("success", strconv.Itoa(httpStatus)).Inc()
		sent, err := lifecycle.Apply(msg, domain.StatusSent, util.NowUTC())
		if err != nil {
			return msg, err
		}
		sent.ExternalID = resp.ExternalID
		ok, err := c.Messages.UpdateMessageStatus(ctx, sent, msg.Status)
		if err != nil {
			return msg, err
		}
		if !ok {
			slog.Warn("sent status write lost to concurrent update",
				"message_id", sent.ID, "tenant_id", sent.TenantID)
		}
		return sent, nil
	}

	observability.GatewaySend.WithLabelValues("failure", strconv.Itoa(httpStatus)).Inc()
	failed, err := lifecycle.Apply(msg, domain.StatusFailed, util.NowUTC())
	if err != nil {
		return msg, err
	}
	failed.ErrorMsg = sendErr.Error()
	if resp.ErrorCode != nil {
		failed.ErrorCode = strconv.Itoa(*resp.ErrorCode)
	}
	ok, err = c.Messages.UpdateMessageStatus(ctx, failed, msg.Status)
	if err != nil {
		return failed, err
	}
	if !ok {
		slog.Warn("failed status write lost to concurrent update",
			"message_id", failed.ID, "tenant_id", failed.TenantID)
	}

	gwErr := &domain.GatewayError{Code: failed.ErrorCode, Err: sendErr}
	if !gateway.ShouldRetry(sendErr, httpStatus) {
		// Permanent carrier rejection: a redrive would fail identically.
		slog.Error("gateway rejected send, not retrying",
			"message_id", failed.ID, "tenant_id", failed.TenantID,
			"http_status", httpStatus, "err", sendErr)
		return failed, gwErr
	}
	if failed.RetryCount >= c.MaxRetries {
		slog.Error("gateway send failed, retry ceiling reached",
			"message_id", failed.ID, "tenant_id", failed.TenantID,
			"retry_count", failed.RetryCount, "err", sendErr)
		return failed, gwErr
	}

	job := sqsqueue.RetryJob{
		TenantID:  failed.TenantID,
		MessageID: failed.ID,
		Attempt:   failed.RetryCount + 1,
	}
	if qerr := c.Retries.EnqueueRetry(ctx, job); qerr != nil {
		observability.RetryEnqueues.WithLabelValues("error").Inc()
		slog.Error("retry enqueue failed", "message_id", failed.ID, "err", qerr)
		return failed, gwErr
	}
	observability.RetryEnqueues.WithLabelValues("ok").Inc()
	slog.Info("gateway send failed, retry queued",
		"message_id", failed.ID, "tenant_id", failed.TenantID, "attempt", job.Attempt)
	return failed, nil
}

// RetryMessage re-drives a previously failed message. Called by the retry
// worker; skips messages that are no longer in a retryable state.
func (c *Coordinator) RetryMessage(ctx context.Context, tenantID, messageID string) (domain.Message, error) {
	msg, found, err := c.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if !found || msg.TenantID != tenantID {
		slog.Warn("retry job references unknown message", "message_id", messageID, "tenant_id", tenantID)
		return domain.Message{}, nil
	}
	if !lifecycle.IsRetryableFailure(msg.Status) {
		slog.Info("skipping retry, message no longer retryable",
			"message_id", messageID, "status", string(msg.Status))
		return msg, nil
	}

	queued, err := lifecycle.Apply(msg, domain.StatusQueued, util.NowUTC())
	if err != nil {
		return msg, err
	}
	ok, err := c.Messages.UpdateMessageStatus(ctx, queued, msg.Status)
	if err != nil {
		return msg, err
	}
	if !ok {
		return msg, nil
	}
	return c.attemptSend(ctx, queued)
}

// ReceiveInbound persists one carrier webhook delivery. Processing the same
// externalId twice persists exactly one message; the duplicate call returns
// the original.
func (c *Coordinator) ReceiveInbound(ctx context.Context, in domain.InboundMessage) (domain.Message, error) {
	if err := in.Validate(); err != nil {
		observability.InboundWebhooks.WithLabelValues("invalid").Inc()
		return domain.Message{}, err
	}

	existing, found, err := c.Messages.FindMessageByExternalID(ctx, in.TenantID, in.ExternalID)
	if err != nil {
		return domain.Message{}, err
	}
	if found {
		observability.InboundWebhooks.WithLabelValues("duplicate").Inc()
		return existing, nil
	}

	// A sender we cannot normalize or look up is still a valid message;
	// intake never blocks on identity resolution.
	contactID := ""
	fromPhone := in.From
	if normalized, err := util.NormalizePhone(in.From, c.DefaultRegion); err == nil {
		fromPhone = normalized
		if c.Contacts != nil {
			contact, found, err := c.Contacts.FindContactByPhone(ctx, in.TenantID, normalized)
			if err != nil {
				slog.Warn("contact lookup failed, persisting without link",
					"tenant_id", in.TenantID, "err", err)
			} else if found {
				contactID = contact.ID
			}
		}
	}

	now := util.NowUTC()
	msg := domain.Message{
		ID:          util.NewMessageID(),
		TenantID:    in.TenantID,
		Direction:   domain.DirectionInbound,
		Channel:     "sms",
		Body:        in.Body,
		FromPhone:   fromPhone,
		ToPhone:     in.To,
		Status:      domain.StatusDelivered,
		ExternalID:  in.ExternalID,
		ContactID:   contactID,
		CreatedAt:   now,
		UpdatedAt:   now,
		DeliveredAt: &now,
	}
	if err := c.Messages.InsertMessage(ctx, msg); err != nil {
		// A concurrent delivery of the same webhook may have won the insert;
		// the unique external id index turns that race into a duplicate.
		if dup, found, ferr := c.Messages.FindMessageByExternalID(ctx, in.TenantID, in.ExternalID); ferr == nil && found {
			observability.InboundWebhooks.WithLabelValues("duplicate").Inc()
			return dup, nil
		}
		return domain.Message{}, err
	}
	observability.InboundWebhooks.WithLabelValues("accepted").Inc()

	if to, keyword := consentKeyword(in.Body); to != "" {
		c.applyConsentKeyword(ctx, in.TenantID, fromPhone, to, keyword)
	}
	return msg, nil
}

// consentKeyword maps carrier-standard reply keywords to a consent status.
func consentKeyword(body string) (consent.Status, string) {
	kw := strings.ToUpper(strings.TrimSpace(body))
	switch kw {
	case "STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "END", "QUIT":
		return consent.StatusOptedOut, kw
	case "START", "UNSTOP", "YES":
		return consent.StatusOptedIn, kw
	}
	return "", ""
}

// applyConsentKeyword records an SMS-sourced opt-in or opt-out against the
// sender's tenant-wide consent. The message itself is already persisted;
// consent write failures are logged, not surfaced, because the carrier must
// still get a success for the webhook.
func (c *Coordinator) applyConsentKeyword(ctx context.Context, tenantID, phone string, to consent.Status, keyword string) {
	rec, found, err := c.Consents.GetConsent(ctx, tenantID, phone, consent.TypeAll)
	if err != nil {
		slog.Error("consent lookup for keyword failed", "tenant_id", tenantID, "keyword", keyword, "err", err)
		return
	}
	now := util.NowUTC()
	if !found {
		rec = consent.Record{
			PhoneNumber: phone,
			Status:      consent.StatusUnknown,
			Source:      consent.SourceSMS,
			Type:        consent.TypeAll,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	if rec.Status == to {
		return
	}

	expected := rec.Version
	updated, err := consent.Apply(rec, to, consent.SourceSMS, map[string]string{"keyword": keyword}, now)
	if err != nil {
		slog.Warn("consent keyword transition rejected",
			"tenant_id", tenantID, "from", string(rec.Status), "to", string(to), "err", err)
		return
	}
	ok, err := c.Consents.SaveConsent(ctx, tenantID, updated, expected)
	if err != nil {
		slog.Error("consent keyword save failed", "tenant_id", tenantID, "keyword", keyword, "err", err)
		return
	}
	if !ok {
		slog.Warn("consent keyword save lost optimistic race", "tenant_id", tenantID, "keyword", keyword)
		return
	}
	slog.Info("consent updated from keyword",
		"tenant_id", tenantID, "status", string(to), "keyword", keyword)
}

// checkConsent applies the legal gate ahead of any counter or gateway work.
// An infrastructure failure during lookup degrades to allowing the send;
// only an explicit denial or an absent/expired marketing consent blocks.
func (c *Coordinator) checkConsent(ctx context.Context, tenantID, phone string, purpose domain.Purpose) error {
	if purpose == domain.PurposeTransactional && !c.RequireTxnConsent {
		return nil
	}

	typ := consent.TypeMarketing
	if purpose == domain.PurposeTransactional {
		typ = consent.TypeTransactional
	}

	rec, found, err := c.Consents.GetConsent(ctx, tenantID, phone, typ)
	if err != nil {
		slog.Warn("consent lookup failed, proceeding without gate",
			"tenant_id", tenantID, "err", err)
		return nil
	}
	if !found {
		observability.ConsentDenied.WithLabelValues("no_record").Inc()
		return &domain.ConsentDeniedError{Phone: phone, Reason: "no consent record"}
	}
	if rec.Status == consent.StatusOptedOut {
		observability.ConsentDenied.WithLabelValues("opted_out").Inc()
		return &domain.ConsentDeniedError{Phone: phone, Reason: "recipient opted out"}
	}

	switch purpose {
	case domain.PurposeMarketing:
		if consent.IsExpired(rec.OptInDate, rec.Metadata) {
			observability.ConsentDenied.WithLabelValues("expired").Inc()
			return &domain.ConsentDeniedError{Phone: phone, Reason: "consent expired"}
		}
		if !consent.AllowsMarketing(rec.Status, rec.Type, rec.OptInDate) {
			observability.ConsentDenied.WithLabelValues("not_opted_in").Inc()
			return &domain.ConsentDeniedError{Phone: phone, Reason: "no marketing opt-in"}
		}
	default:
		if !consent.AllowsTransactional(rec.Status, rec.Type) {
			observability.ConsentDenied.WithLabelValues("not_opted_in").Inc()
			return &domain.ConsentDeniedError{Phone: phone, Reason: "no transactional opt-in"}
		}
	}
	return nil
}
