package httpserver

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"smsgate/internal/domain"
)

type InboundReceiver interface {
	ReceiveInbound(ctx context.Context, in domain.InboundMessage) (domain.Message, error)
}

// Webhook accepts carrier callbacks for received messages. Signature
// verification is optional; leave VerifySignature nil to accept unsigned
// payloads (local development, trusted network).
type Webhook struct {
	Receiver        InboundReceiver
	VerifySignature func(authToken, fullURL, provided string, form url.Values) bool
	AuthToken       string
	PublicURL       string
}

func (wh *Webhook) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/webhooks/inbound", wh.handleInbound).Methods(http.MethodPost)
}

func (wh *Webhook) handleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrBadForm, http.StatusBadRequest)
		return
	}
	if wh.VerifySignature != nil {
		provided := r.Header.Get("X-Carrier-Signature")
		if !wh.VerifySignature(wh.AuthToken, wh.PublicURL, provided, r.PostForm) {
			http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
			return
		}
	}

	in := domain.InboundMessage{
		ExternalID: r.PostForm.Get("MessageSid"),
		From:       r.PostForm.Get("From"),
		To:         r.PostForm.Get("To"),
		Body:       r.PostForm.Get("Body"),
		TenantID:   r.PostForm.Get("TenantId"),
	}

	msg, err := wh.Receiver.ReceiveInbound(r.Context(), in)
	if err != nil {
		WriteError(w, err)
		return
	}

	// Duplicate deliveries take this same path: the carrier only needs to
	// know we have the message.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"messageId":"` + msg.ID + `"}`))
}
