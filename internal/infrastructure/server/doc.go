// Package server wires the ThreadScope backend together.
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger and the prometheus registry
//  3. Load the feature registry (built-in plus FEATURES_PATH files)
//  4. Build governor, run client, span builder and thread assembler
//  5. Setup middleware and routes, gzip responses
//  6. Serve until the context ends, purging the response cache once per TTL
//  7. Graceful shutdown
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
