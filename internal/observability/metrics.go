package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smsgate_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smsgate_rate_limit_decisions_total", Help: "Rate limit decisions"},
		[]string{"message_type", "result"},
	)
	ConsentDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smsgate_consent_denied_total", Help: "Sends blocked by consent"},
		[]string{"reason"},
	)
	GatewaySend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smsgate_gateway_send_total", Help: "Carrier gateway send outcomes"},
		[]string{"result", "http_status"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "smsgate_gateway_send_latency_seconds", Help: "Carrier gateway send latency"},
	)
	InboundWebhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smsgate_inbound_webhooks_total", Help: "Inbound webhook outcomes"},
		[]string{"result"},
	)
	RetryEnqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "smsgate_retry_enqueue_total", Help: "Retry job enqueue results"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, RateLimitDecisions, ConsentDenied, GatewaySend, GatewayLatency, InboundWebhooks, RetryEnqueues)
}
