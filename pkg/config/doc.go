// Package config loads Gazette configuration from defaults, an optional YAML
// file and environment variables.
//
// # Precedence
//
// Default() < GAZETTE_CONFIG_FILE < GAZETTE_* environment variables.
//
// # Environment
//
// Server settings:
//
//	GAZETTE_HOST="0.0.0.0"
//	GAZETTE_PORT="8080"
//	GAZETTE_HEALTH_PORT="9090"
//	GAZETTE_PUBLIC_URL="https://gazette.example.com"
//
// Storage settings (empty URLs select in-memory stores):
//
//	GAZETTE_DATABASE_URL="postgres://localhost/gazette?sslmode=disable"
//	GAZETTE_DATABASE_AUTO_MIGRATE="true"
//	GAZETTE_REDIS_URL="redis://localhost:6379/0"
//
// Sessions, mail and rate limits:
//
//	GAZETTE_SESSION_TTL="168h"
//	GAZETTE_MAIL_MODE="smtp"  # preview, smtp
//	GAZETTE_SMTP_HOST="smtp.example.com"
//	GAZETTE_LOGIN_RATE_LIMIT="10"
//	GAZETTE_LOGIN_RATE_WINDOW="1m"
//
// Observability settings:
//
//	GAZETTE_LOG_LEVEL="info"  # debug, info, warn, error
//	GAZETTE_METRICS_ENABLED="true"
//	GAZETTE_OTEL_ENABLED="true"
//	GAZETTE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Catalog
//
// The subscription catalog can only be replaced from the file:
//
//	catalog:
//	  - name: Business
//	    price_cents: 2999
//	    features: ["Publish articles", "Create and manage channels"]
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatalf("Failed to load configuration: %v", err)
//	}
package config
