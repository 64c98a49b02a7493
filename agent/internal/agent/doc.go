// Package agent assembles the shipping pipeline from config and runs it.
//
// New opens every component (spool, archive, uploader, codec, buffer,
// shipper, sweeper, sensor, metrics). Run starts the long-lived units in one
// errgroup and returns after all of them have exited; the shipper's final
// flush happens inside that window. Close releases the stores and idle
// upload connections.
//
// EnsureIdentity is the one-time client certificate check performed before
// the pipeline starts.
package agent
