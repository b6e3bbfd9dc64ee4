package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	RedisAddr   string `envconfig:"REDIS_ADDR" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Consent policy
	RequireTxnConsent bool   `envconfig:"REQUIRE_TXN_CONSENT" default:"false"`
	DefaultRegion     string `envconfig:"DEFAULT_PHONE_REGION" default:"US"`

	// Carrier gateway
	GatewayAccountSID string `envconfig:"GATEWAY_ACCOUNT_SID" required:"true"`
	GatewayAuthToken  string `envconfig:"GATEWAY_AUTH_TOKEN" required:"true"`
	GatewayFromNumber string `envconfig:"GATEWAY_FROM_NUMBER"`
	GatewayBaseURL    string `envconfig:"GATEWAY_BASE_URL" default:"https://api.carrier.example.com"`
	GatewayTimeoutSec int    `envconfig:"GATEWAY_TIMEOUT_SEC" default:"10"`
	MaxRetries        int    `envconfig:"MAX_RETRIES" default:"3"`

	// Inbound webhook signature verification; empty PublicWebhookURL
	// disables verification.
	PublicWebhookURL string `envconfig:"PUBLIC_WEBHOOK_URL"`

	// AWS / SQS retry queue
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type WorkerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	RedisAddr   string `envconfig:"REDIS_ADDR" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"20"`

	// Carrier gateway
	GatewayAccountSID string  `envconfig:"GATEWAY_ACCOUNT_SID" required:"true"`
	GatewayAuthToken  string  `envconfig:"GATEWAY_AUTH_TOKEN" required:"true"`
	GatewayFromNumber string  `envconfig:"GATEWAY_FROM_NUMBER"`
	GatewayBaseURL    string  `envconfig:"GATEWAY_BASE_URL" default:"https://api.carrier.example.com"`
	GatewayTimeoutSec int     `envconfig:"GATEWAY_TIMEOUT_SEC" default:"10"`
	MaxRetries        int     `envconfig:"MAX_RETRIES" default:"3"`
	GatewayRPSPerPod  float64 `envconfig:"GATEWAY_RPS_PER_POD" default:"5"`
	GatewayBurst      int     `envconfig:"GATEWAY_BURST" default:"10"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
