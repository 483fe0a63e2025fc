package config

// Centralized port assignments so services and their health checks stay in
// sync. Override through configuration; these are the defaults.
const (
	// APIServerPort is the port for the REST/WebSocket API server.
	APIServerPort = 8081

	// MetricsPort is the Prometheus metrics endpoint port.
	MetricsPort = 9100

	// EvaluatordHealthPort is the metrics/health port for the evaluation daemon.
	EvaluatordHealthPort = 9101
)
