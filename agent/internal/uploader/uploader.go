package uploader

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fieldtrack/fieldtrack/agent/internal/codec"
	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/agent/internal/identity"
)

// maxDrain bounds how much of a response body is read before closing.
const maxDrain = 64 << 10

// Uploader posts payloads to the collector endpoint.
type Uploader struct {
	endpoint string
	timeout  time.Duration
	secure   bool
	identity *clientIdentity
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   *slog.Logger
}

// New builds an Uploader from cfg. It fails only on static problems such as
// an unreadable CA file.
func New(cfg config.UploaderConfig, logger *slog.Logger) (*Uploader, error) {
	endpoint := cfg.Endpoint()
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("uploader: parse endpoint: %w", err)
	}

	up := &Uploader{
		endpoint: endpoint,
		timeout:  cfg.Timeout,
		secure:   u.Scheme == "https",
		identity: &clientIdentity{
			certFile: cfg.CertFile,
			keyFile:  cfg.KeyFile,
			require:  cfg.RequireClientCert,
			logger:   logger,
		},
		logger: logger,
	}

	tlsCfg, err := up.tlsConfig(cfg)
	if err != nil {
		return nil, err
	}
	if up.secure && cfg.InsecureSkipVerify {
		logger.Warn("uploader: server certificate verification disabled; use a proper CA instead",
			"endpoint", endpoint)
	}

	up.client = &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsCfg,
		},
		// A redirected POST would be replayed as a bodiless GET.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	if cfg.Breaker.Enabled {
		up.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "upload",
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("uploader: circuit breaker state changed",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return up, nil
}

func (u *Uploader) tlsConfig(cfg config.UploaderConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify:   cfg.InsecureSkipVerify, //nolint:gosec // user-configured
		GetClientCertificate: u.identity.getClientCertificate,
	}
	pool, err := identity.RootCAs(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("uploader: %w", err)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// Endpoint returns the URL payloads are posted to.
func (u *Uploader) Endpoint() string { return u.endpoint }

// HasIdentity reports whether a client certificate would be presented.
func (u *Uploader) HasIdentity() bool { return u.secure && u.identity.present() }

// Send makes a single upload attempt for payload.
func (u *Uploader) Send(ctx context.Context, payload []byte) error {
	if u.breaker == nil {
		return u.send(ctx, payload)
	}
	_, err := u.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, u.send(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Reason: ReasonCircuitOpen, Err: err}
	}
	return err
}

func (u *Uploader) send(ctx context.Context, payload []byte) error {
	if u.secure && u.identity.require && !u.identity.present() {
		return &Error{Reason: ReasonIdentity, Err: errNoIdentity}
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Error{Reason: ReasonTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", codec.ContentType)
	req.Header.Set("User-Agent", "fieldtrack-agent")

	resp, err := u.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &Error{Reason: ReasonTimeout, Err: err}
		}
		return &Error{Reason: ReasonTransport, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Reason:     ReasonStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server responded with %s", resp.Status),
		}
	}
	return nil
}

// Close releases idle connections.
func (u *Uploader) Close() {
	u.client.CloseIdleConnections()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
