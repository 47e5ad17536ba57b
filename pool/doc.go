// File: pool/doc.go
// Package pool implements the process-wide, size-classed buffer pool that
// backs receive buffers, outbound frame buffers, and the per-client
// outbound queue. Every Get is safe to call concurrently; Put is
// best-effort and never blocks.
package pool
