// Package main is the entry point for the ThreadScope backend server.
//
// ThreadScope reads agent traces from LangSmith and serves them to the
// viewer UI as ordered span trees, one thread at a time.
//
// Architecture:
//
//	Viewer UI → Go Backend → LangSmith runs/query
//
// The server provides:
//   - Feature and thread listing
//   - Thread assembly, including topic threads that span traces
//   - Cached, throttled and retried upstream access
//   - Prometheus metrics and structured logs
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	LANGSMITH_API_KEY=... LANGSMITH_PROJECT=... ./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev -features 'config/features/**/*.yaml'
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
