// Package shipper runs the batch flush cycle.
//
// Every interval the Shipper drains the ingestion buffer, encodes the batch
// into one payload and makes a single upload attempt. A delivered payload is
// optionally copied to the archive store. A failed one is handed to the spool
// for the replay sweeper; if the spool cannot take it either, the data is
// gone and the shipper says so at CRITICAL.
//
// The timer is re-armed after each flush completes, so a slow upload pushes
// the next tick back instead of stacking flushes.
//
// When Run's context is cancelled the shipper makes one last flush under a
// fresh context bounded by the shutdown grace period.
package shipper
