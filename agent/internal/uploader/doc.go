// Package uploader sends one payload to the collector per Send call.
//
// Send POSTs the payload as application/octet-stream to
// <url><api_path><client_name> with a bounded timeout and reports the
// outcome as an error: nil on a 2xx response, *Error otherwise. It never
// retries; the shipper and the sweeper decide what a failure means.
//
// Client identity: for https endpoints the certificate/key pair is read from
// disk at every TLS handshake, so an identity written by the bootstrap flow
// is picked up without a restart. When the files are absent the request goes
// out without a client certificate, unless require_client_cert is set, in
// which case Send fails closed without touching the network.
//
// An optional gobreaker circuit breaker turns a run of consecutive failures
// into fast ReasonCircuitOpen failures until the open timeout elapses.
package uploader
