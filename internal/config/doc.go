// Package config handles configuration loading for doodle-server.
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
//	  jwt_secret: "${DOODLE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Tenant storage:
//
//	storage:
//	  data_dir: "/var/lib/doodle/data"
//	  pool_max: 50
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${DOODLE_JWT_SECRET}"
//	  token_ttl: "8h"
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
//   - JWT secret presence and minimum length (32 bytes)
//   - Storage data directory presence
//   - Duration format validity
//
// # Usage
//
//	cfg, err := config.Load("/etc/doodle/server.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
