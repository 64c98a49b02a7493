// Package types defines the shared in-memory types that flow through the
// agent pipeline: a Record is one sensor reading, a Batch is the ordered set
// of records captured at one flush.
package types
