// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level sections:
//   - sensor: gpsd address and class filter, or the simulated source
//   - buffer, shipper, archive: flush cycle and write-through archive
//   - spool, sweeper: failed-upload holding area (dir | bolt) and replay cycle
//   - uploader: collector URL, timeout, mTLS identity, circuit breaker
//   - bootstrap: one-time identity provisioning
//   - log, status: log sink and local status surfaces
//
// Load(path) reads the YAML file, applies defaults (60s flush and replay,
// 10s upload timeout, ./failed/ spool), then validates every field and
// reports all problems at once.
//
// Watch uses fsnotify to follow the file. Each write that yields a valid
// config different from the previous one is reported as a Change naming the
// top-level sections that moved, so callers apply what can change live and
// flag the rest for a restart.
package config
