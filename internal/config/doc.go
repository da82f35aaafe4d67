// Package config handles configuration loading for asf-auth.
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
//	  jwt_secret: "${ASF_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  lockout_duration: "30m"
//	  session_ttl: "1h"
//	  verification_ttl: "24h"
//	  reset_ttl: "1h"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  login_rate_per_second: 1
//	  login_burst: 5
//
// Database:
//
//	database:
//	  path: "/var/lib/asf-auth/auth.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${ASF_JWT_SECRET}"   # required, >= 32 bytes
//	  provider: "local"                 # local, external
//	  max_login_attempts: 5
//	  require_verified_email: false
//
// Outbound mail (log-only when host/user are unset):
//
//	smtp:
//	  host: "smtp.example.com"
//	  port: 587
//	  user: "noreply@example.com"
//	  password: "${ASF_SMTP_PASSWORD}"
//	  base_url: "https://app.example.com"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - JWT secret minimum length (32 bytes)
//   - Required server address and database path
//   - Duration format validity
//   - Provider values
package config
