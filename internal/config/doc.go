// Package config handles configuration loading for concierge-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CONCIERGE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	routing:
//	  expiry_window: "2m"
//	extraction:
//	  timeout: "15s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Webhook, WebSocket and health endpoints
//
// Database:
//
//	database:
//	  path: "/var/lib/concierge/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CONCIERGE_JWT_SECRET}"
//
// Routing:
//
//	routing:
//	  expiry_window: "2m"
//	  departments:
//	    - id: "reception"
//	      title: "Reception"
//	  hotel_ids: ["42"]      # empty accepts any hotel code
//
// Feedback:
//
//	feedback:
//	  google_review_link: "https://g.page/r/..."
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/concierge/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
