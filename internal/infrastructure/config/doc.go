// Package config provides 12-factor configuration management for the
// ThreadScope backend.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - LangSmith: remote trace store endpoint, credentials and page size
//   - Governor: response cache TTL, dispatch spacing and retry backoff
//   - Features: optional glob of feature registry files
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - LANGSMITH_API_KEY, LANGSMITH_PROJECT, LANGSMITH_ENDPOINT, LANGSMITH_PAGE_SIZE
//   - GOVERNOR_CACHE_TTL, GOVERNOR_SPACING, GOVERNOR_INITIAL_BACKOFF,
//     GOVERNOR_MAX_BACKOFF, GOVERNOR_MAX_RETRIES, GOVERNOR_TIMEOUT
//   - FEATURES_PATH
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
