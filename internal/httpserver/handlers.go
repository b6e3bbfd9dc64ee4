package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"smsgate/internal/dispatch"
	"smsgate/internal/domain"
	"smsgate/internal/ratelimit"
)

type OutboundSender interface {
	SendOutbound(ctx context.Context, req domain.OutboundRequest) (domain.Message, error)
}

type API struct {
	Dispatcher OutboundSender
	Messages   dispatch.MessageStore
	Limiter    *ratelimit.Limiter
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/messages", a.handleSendMessage).Methods(http.MethodPost)
	mux.HandleFunc("/v1/messages/{id}", a.handleGetMessage).Methods(http.MethodGet)
	mux.HandleFunc("/v1/tenants/{tenant}/usage", a.handleGetUsage).Methods(http.MethodGet)
	mux.HandleFunc("/v1/tenants/{tenant}/limits/reset", a.handleResetLimits).Methods(http.MethodPost)
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.OutboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	msg, err := a.Dispatcher.SendOutbound(r.Context(), req)
	if err != nil {
		slog.Error("send outbound failed",
			"err", err,
			"tenant_id", req.TenantID,
			"to", req.To,
			"purpose", string(req.Purpose),
		)
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(msg)
}

func (a *API) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	msg, found, err := a.Messages.GetMessage(r.Context(), id)
	if err != nil {
		slog.Error("get message failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msg)
}

func (a *API) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]
	messageType := r.URL.Query().Get("type")
	if messageType == "" {
		messageType = "sms"
	}

	usage := a.Limiter.GetCurrentUsage(r.Context(), tenant, messageType)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenantId":    tenant,
		"messageType": messageType,
		"usage":       usage,
	})
}

type resetLimitsRequest struct {
	MessageType string   `json:"messageType"`
	Windows     []string `json:"windows,omitempty"`
}

func (a *API) handleResetLimits(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]
	var req resetLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if req.MessageType == "" {
		req.MessageType = "sms"
	}

	windows := make([]ratelimit.Window, 0, len(req.Windows))
	for _, raw := range req.Windows {
		win := ratelimit.Window(raw)
		valid := false
		for _, known := range ratelimit.Windows {
			if win == known {
				valid = true
				break
			}
		}
		if !valid {
			http.Error(w, "unknown window: "+raw, http.StatusBadRequest)
			return
		}
		windows = append(windows, win)
	}

	if err := a.Limiter.ResetLimits(r.Context(), tenant, req.MessageType, windows...); err != nil {
		slog.Error("reset limits failed", "err", err, "tenant_id", tenant)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
