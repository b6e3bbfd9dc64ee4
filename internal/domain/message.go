package domain

import "time"

type Status string

const (
	StatusQueued      Status = "queued"
	StatusSending     Status = "sending"
	StatusSent        Status = "sent"
	StatusDelivered   Status = "delivered"
	StatusFailed      Status = "failed"
	StatusUndelivered Status = "undelivered"
	StatusCanceled    Status = "canceled"
)

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Purpose classifies a send for consent gating.
type Purpose string

const (
	PurposeMarketing     Purpose = "marketing"
	PurposeTransactional Purpose = "transactional"
)

// Message is a single SMS-style communication. ExternalID is the
// carrier-assigned id; when present it is unique per tenant and is the sole
// dedup key for inbound webhooks.
type Message struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Direction   Direction  `json:"direction"`
	Channel     string     `json:"channel"`
	Body        string     `json:"body"`
	FromPhone   string     `json:"from"`
	ToPhone     string     `json:"to"`
	Status      Status     `json:"status"`
	ExternalID  string     `json:"externalId,omitempty"`
	RetryCount  int        `json:"retryCount"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	ErrorMsg    string     `json:"errorMessage,omitempty"`
	ContactID   string     `json:"contactId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// OutboundRequest is a caller's request to send a message.
type OutboundRequest struct {
	TenantID    string  `json:"tenantId"`
	To          string  `json:"to"`
	From        string  `json:"from"`
	Body        string  `json:"body"`
	ContactID   string  `json:"contactId,omitempty"`
	MessageType string  `json:"messageType"` // sms, mms
	Purpose     Purpose `json:"purpose"`
}

func (r OutboundRequest) Validate() error {
	for _, f := range []struct{ name, val string }{
		{"tenantId", r.TenantID},
		{"to", r.To},
		{"from", r.From},
		{"body", r.Body},
	} {
		if f.val == "" {
			return &ValidationError{Field: f.name}
		}
	}
	return nil
}

// InboundMessage is the carrier webhook payload for a received message.
type InboundMessage struct {
	ExternalID string `json:"externalId"`
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	TenantID   string `json:"tenantId"`
}

// Validate rejects missing or empty required fields before any side effect.
func (m InboundMessage) Validate() error {
	for _, f := range []struct{ name, val string }{
		{"externalId", m.ExternalID},
		{"from", m.From},
		{"to", m.To},
		{"body", m.Body},
		{"tenantId", m.TenantID},
	} {
		if f.val == "" {
			return &ValidationError{Field: f.name}
		}
	}
	return nil
}
