// Package identity manages the tracker's mTLS client certificate.
//
// Bootstrap provisions a certificate and key from the enrolment authority the
// first time the agent starts without them: it PUTs the bootstrap code and
// operator email as JSON, retrying with truncated exponential backoff
// (±25% jitter, capped at 60s) until the authority answers or ctx ends, then
// writes the returned PEM material where the uploader expects it.
//
// Inspect reads the certificate from disk and reports its expiry status
// (valid, expiring within 30 days, expired) for the startup log and the
// status endpoint.
package identity
