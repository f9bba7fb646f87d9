// Package cache is the durable thumbnail store consulted before any frame
// extraction.
//
// Entries are keyed by the literal media URL. No normalisation is applied:
// "a.mp4" and "a.mp4?v=1" are distinct entries. There is no eviction and no
// schema versioning; Delete exists so an operator (or a test) can emulate an
// entry being evicted externally.
//
// Every Store enforces a byte quota on payloads. Put returns ErrQuotaExceeded
// when the write would exceed it. Callers treat all Put errors as best effort:
// a thumbnail that cannot be cached is still shown.
//
// Three backends are provided:
//   - MemoryStore: process-local, used by tests and CACHE_BACKEND=memory
//   - SQLiteStore: a single-table SQLite database (default)
//   - MinioStore: one JSON object per entry in an S3-compatible bucket
package cache
