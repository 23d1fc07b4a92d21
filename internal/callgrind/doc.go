// Package callgrind implements the two-stage Callgrind profile engine: a
// Preprocessor that ingests a Callgrind text trace and writes a compact
// binary index, and a Reader that answers per-function queries against
// that index with seek-based random access.
//
// The package is single-threaded and synchronous. Neither Preprocessor
// nor Reader is safe for concurrent use; callers needing parallelism
// should construct independent instances over independent files (see
// internal/batch for one such caller).
package callgrind
