// Package http exposes assembled threads to the viewer UI over a read-only
// JSON API.
//
//	GET /health
//	GET /api/features
//	GET /api/features/:id/threads?limit=&cursor=
//	GET /api/threads/:id?feature=
//
// Failures are reported as {"error": ..., "request_id": ...} with the status
// chosen by StatusFor. An empty thread is a 200.
package http
