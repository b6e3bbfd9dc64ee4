// mock-gateway is a stand-in for the external SMS carrier. It accepts sends
// on the same API shape the real carrier exposes and can post simulated
// inbound webhooks back at the service for local end-to-end testing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"smsgate/internal/gateway"
)

type config struct {
	AccountSID string `envconfig:"GATEWAY_ACCOUNT_SID" default:"mock_sid"`
	AuthToken  string `envconfig:"GATEWAY_AUTH_TOKEN" default:"mock_token"`
	Port       string `envconfig:"PORT" default:"8080"`

	// OutcomeMode "fixed" always returns Outcome; "round_robin" cycles the
	// comma-separated Outcomes list. Tokens: ok, failed, rate_limit,
	// server_error.
	OutcomeMode string `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw string `envconfig:"MOCK_OUTCOMES" default:"ok"`
	DelayMs     int    `envconfig:"MOCK_DELAY_MS" default:"0"`

	// When set, each accepted send triggers a simulated inbound reply posted
	// to this URL after ReplyDelayMs.
	InboundWebhookURL string `envconfig:"MOCK_INBOUND_WEBHOOK_URL" default:""`
	InboundTenantID   string `envconfig:"MOCK_INBOUND_TENANT_ID" default:"t1"`
	ReplyDelayMs      int    `envconfig:"MOCK_REPLY_DELAY_MS" default:"500"`
}

type sendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
}

type server struct {
	cfg      config
	outcomes []string
	// idx numbers accepted sends for sid generation; cursor advances the
	// round-robin outcome rotation on every send, accepted or not.
	idx    uint64
	cursor uint64
	client *http.Client
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock gateway config load failed", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	s := &server{
		cfg:      cfg,
		outcomes: parseCSV(cfg.OutcomesRaw),
		client:   &http.Client{Timeout: 5 * time.Second},
	}

	router := mux.NewRouter()
	router.HandleFunc("/v1/accounts/{sid}/messages", s.handleSend).Methods(http.MethodPost)

	slog.Info("mock gateway listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("mock gateway server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != s.cfg.AccountSID || pass != s.cfg.AuthToken {
		writeError(w, http.StatusUnauthorized, 20003, "authentication error")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, 21620, "invalid form data")
		return
	}
	to := r.Form.Get("To")
	from := r.Form.Get("From")
	body := r.Form.Get("Body")
	if to == "" || from == "" || body == "" {
		writeError(w, http.StatusBadRequest, 21602, "missing required parameter")
		return
	}

	if s.cfg.DelayMs > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(time.Duration(s.cfg.DelayMs) * time.Millisecond):
		}
	}

	switch s.nextOutcome() {
	case "failed":
		writeError(w, http.StatusBadRequest, 30008, "message rejected")
		return
	case "rate_limit":
		writeError(w, http.StatusTooManyRequests, 20429, "rate limited")
		return
	case "server_error":
		writeError(w, http.StatusInternalServerError, 20500, "server error")
		return
	}

	sid := fmt.Sprintf("SM%06d", atomic.AddUint64(&s.idx, 1))
	writeJSON(w, http.StatusCreated, sendResponse{Sid: sid, Status: "queued"})
	slog.Info("mock send accepted", "sid", sid, "to", to)

	if s.cfg.InboundWebhookURL != "" {
		go s.postInboundReply(sid, to, from)
	}
}

// postInboundReply simulates the recipient answering the message.
func (s *server) postInboundReply(sid, originalTo, originalFrom string) {
	time.Sleep(time.Duration(s.cfg.ReplyDelayMs) * time.Millisecond)

	form := url.Values{}
	form.Set("MessageSid", sid+"R")
	form.Set("From", originalTo)
	form.Set("To", originalFrom)
	form.Set("Body", "mock reply to "+sid)
	form.Set("TenantId", s.cfg.InboundTenantID)

	sig := gateway.Sign(s.cfg.AuthToken, s.cfg.InboundWebhookURL, form)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.InboundWebhookURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Carrier-Signature", sig)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("mock inbound webhook post failed", "err", err)
		return
	}
	defer resp.Body.Close()
	slog.Info("mock inbound webhook posted", "status", resp.StatusCode, "sid", sid)
}

func (s *server) nextOutcome() string {
	if s.cfg.OutcomeMode == "round_robin" {
		n := atomic.AddUint64(&s.cursor, 1) - 1
		return s.outcomes[int(n)%len(s.outcomes)]
	}
	return s.outcomes[0]
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"ok"}
	}
	return out
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	resp := sendResponse{Status: "failed", Message: msg, ErrorCode: &code}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
