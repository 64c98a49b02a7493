// Package metrics holds the agent's Prometheus instrumentation.
//
// All collectors live on a private registry (not the global default) so that
// tests can build as many independent Metrics as they need. The registry is
// exposed over the status server and can also be written periodically to a
// node_exporter textfile-collector file with RunTextfile.
//
// Every method is safe to call on a nil *Metrics, which is what components
// receive when they are built without instrumentation (mostly in tests).
package metrics
