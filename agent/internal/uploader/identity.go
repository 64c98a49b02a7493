package uploader

import (
	"crypto/tls"
	"errors"
	"log/slog"

	"github.com/fieldtrack/fieldtrack/agent/internal/identity"
)

var errNoIdentity = errors.New("client certificate required but not available")

// clientIdentity resolves the client certificate lazily from disk.
type clientIdentity struct {
	certFile string
	keyFile  string
	require  bool
	logger   *slog.Logger
}

// present reports whether both files are configured and readable.
func (c *clientIdentity) present() bool {
	return identity.Present(c.certFile, c.keyFile)
}

// getClientCertificate is installed as tls.Config.GetClientCertificate.
// An empty certificate tells crypto/tls to continue without one.
func (c *clientIdentity) getClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	if !c.present() {
		if c.require {
			return nil, errNoIdentity
		}
		return &tls.Certificate{}, nil
	}
	cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
	if err != nil {
		if c.require {
			return nil, err
		}
		c.logger.Warn("uploader: cannot load client certificate, continuing without it",
			"cert_file", c.certFile, "err", err)
		return &tls.Certificate{}, nil
	}
	return &cert, nil
}
