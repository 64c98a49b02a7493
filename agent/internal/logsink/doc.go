// Package logsink builds the agent's structured logger on top of log/slog.
//
// The agent reports five severities: DEBUG, INFO, WARNING, EXCEPTION and
// CRITICAL. WARNING and EXCEPTION map onto slog's Warn and Error levels;
// CRITICAL sits above Error and marks definitive data loss. Level names are
// rendered with these words in every output format.
//
// Each component derives its logger with For(logger, "shipper") so every line
// carries a "source" attribute. Output goes to stdout, stderr or the local
// syslog daemon, as JSON or logfmt-style text.
//
// Recorder is an slog.Handler that keeps records in memory for tests.
package logsink
