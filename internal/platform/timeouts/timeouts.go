// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// StoreOp caps the time allowed for a single ephemeral store operation.
// A stalled store call fails the whole ingest call as a unit.
const StoreOp = 2 * time.Second

// LedgerFetch caps the wait for the durable claims ledger on a territory
// cache miss.
const LedgerFetch = 2 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
