// Package types defines the core data types used throughout the storage system.
//
// Key types:
//   - Reading: one immutable sensor sample
//   - Aggregate: running min/max per measured field, each an Extremum
//   - ExportRow: a reading labelled with its age for export
//   - Log, Cursor: the contract both persisted log layouts implement
package types
