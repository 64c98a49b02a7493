package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/agent/internal/identity"
	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
)

// EnsureIdentity makes sure the client certificate is in place before the
// pipeline starts. Missing files are bootstrapped when bootstrap data is
// configured. Without it, the agent carries on uncertified unless the
// uploader requires a certificate, in which case ErrNotConfigured is
// returned and logged at CRITICAL.
func EnsureIdentity(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger = logsink.For(logger, "identity")
	up := cfg.Uploader

	if !identity.Present(up.CertFile, up.KeyFile) {
		if !cfg.Bootstrap.Configured() {
			if up.RequireClientCert {
				logsink.Critical(logger, "identity: missing client certificate and bootstrap data, can't continue",
					"cert_file", up.CertFile, "key_file", up.KeyFile)
				return identity.ErrNotConfigured
			}
			logger.Warn("identity: no client certificate, uploads will go out without one",
				"cert_file", up.CertFile)
			return nil
		}
		logger.Info("identity: client certificate missing, bootstrapping", "url", cfg.Bootstrap.URL)
		if err := identity.Bootstrap(ctx, cfg.Bootstrap, up, logger); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logsink.Critical(logger, "identity: bootstrap failed", "err", err)
			return err
		}
	}

	cs, err := identity.Inspect(up.CertFile)
	if err != nil {
		logger.Warn("identity: cannot inspect client certificate", "err", err)
		return nil
	}
	attrs := []any{"subject", cs.Subject, "issuer", cs.Issuer, "not_after", cs.NotAfter, "days_left", cs.DaysLeft}
	switch cs.Status {
	case identity.StatusValid:
		logger.Info("identity: client certificate loaded", attrs...)
	default:
		logger.Warn("identity: client certificate "+cs.Status, attrs...)
	}
	return nil
}
