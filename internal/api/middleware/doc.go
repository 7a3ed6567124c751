// Package middleware provides the HTTP middleware of the viewer API.
//
// Middleware stack includes:
//   - Recovery: panic recovery with a JSON 500
//   - RequestID: X-Request-ID propagation, ULID ids minted when absent
//   - AccessLog: one zap line per request
//   - CORS: cross-origin access for the UI
//   - RateLimit: per-IP token bucket with idle client cleanup
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger), middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
