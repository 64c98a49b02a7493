// Package spool is the durable holding area for payloads that could not be
// uploaded, and the write-through archive for payloads that were.
//
// Store is the storage-neutral interface used by the shipper and the sweeper:
// Put writes a new entry, List enumerates entries oldest first, Read and
// Remove operate on one entry. Entries are never modified in place, so a
// writer and a reader/deleter can share a store without coordination.
//
// Entry IDs are ULIDs drawn from a monotonic source: IDs sort
// lexicographically in creation order, including several Puts within one
// millisecond and across restarts (the generator is seeded with the newest
// ID already present).
//
// Backends:
//   - DirStore: one file per entry (<prefix><ULID>.gzip) on an afero.Fs,
//     written to a temp file and renamed into place.
//   - BoltStore: one key per entry in a bbolt bucket.
//
// Bound wraps any Store with a drop-oldest size limit.
package spool
