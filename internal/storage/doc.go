// Package storage implements a bounded, persistent log of environmental
// sensor readings together with a running min/max aggregate.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Sampler   │────▶│    Store    │────▶│  Log (ring  │
//	│    Loop     │     │  (1 mutex)  │     │   or flat)  │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │
//	                           ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │  Aggregate  │     │    Query    │
//	                    │   Tracker   │     │   Service   │
//	                    └─────────────┘     └─────────────┘
//
// The storage system provides:
//   - A capacity-bounded log that evicts the oldest reading first
//   - Two persisted layouts: an O(1) ring arena and the legacy flat object
//   - A min/max aggregate persisted on every change
//   - Full and windowed exports as CSV, JSON, protobuf or Parquet
//   - DDSketch summaries and DuckDB queries over log snapshots
//
// A missing or unreadable medium is never fatal: the store reads as empty
// and drops writes with a diagnostic.
package storage
