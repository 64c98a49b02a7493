// Package status serves the agent's local HTTP surface:
//
//	GET /healthz       : liveness, always "ok"
//	GET /api/v1/status : pipeline state as JSON (StatusResponse)
//	GET /metrics       : Prometheus exposition of the agent registry
//
// The API endpoints answer 405 for anything but GET. Nothing here mutates
// agent state.
package status
