package uploader

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/agent/internal/testcert"
)

type collector struct {
	mu     sync.Mutex
	status int
	bodies [][]byte
	paths  []string
	ctypes []string
	hits   atomic.Int32
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.hits.Add(1)
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, body)
	c.paths = append(c.paths, r.URL.Path)
	c.ctypes = append(c.ctypes, r.Header.Get("Content-Type"))
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uploaderCfg(url string) config.UploaderConfig {
	return config.UploaderConfig{
		URL:        url,
		APIPath:    "/api/gps/",
		ClientName: "tracker-01",
		Timeout:    2 * time.Second,
	}
}

func newUploader(t *testing.T, cfg config.UploaderConfig) *Uploader {
	t.Helper()
	u, err := New(cfg, discard())
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u
}

func TestSend_Success(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	u := newUploader(t, uploaderCfg(srv.URL))
	require.NoError(t, u.Send(context.Background(), []byte{0x1f, 0x8b, 0x08}))

	require.Len(t, c.bodies, 1)
	assert.Equal(t, []byte{0x1f, 0x8b, 0x08}, c.bodies[0])
	assert.Equal(t, "/api/gps/tracker-01", c.paths[0])
	assert.Equal(t, "application/octet-stream", c.ctypes[0])
	assert.Equal(t, srv.URL+"/api/gps/tracker-01", u.Endpoint())
}

func TestSend_StatusClasses(t *testing.T) {
	tests := []struct {
		status int
		ok     bool
	}{
		{http.StatusOK, true},
		{http.StatusAccepted, true},
		{http.StatusNoContent, true},
		{http.StatusMovedPermanently, false},
		{http.StatusBadRequest, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := &collector{status: tc.status}
			srv := httptest.NewServer(c)
			defer srv.Close()

			err := newUploader(t, uploaderCfg(srv.URL)).Send(context.Background(), []byte("p"))
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var ue *Error
			require.True(t, errors.As(err, &ue), "got %v", err)
			assert.Equal(t, ReasonStatus, ue.Reason)
			assert.Equal(t, tc.status, ue.StatusCode)
		})
	}
}

func TestSend_RedirectIsFailure(t *testing.T) {
	c := &collector{}
	target := httptest.NewServer(c)
	defer target.Close()
	srv := httptest.NewServer(http.RedirectHandler(target.URL, http.StatusFound))
	defer srv.Close()

	err := newUploader(t, uploaderCfg(srv.URL)).Send(context.Background(), []byte("p"))
	assert.Equal(t, ReasonStatus, ReasonOf(err), "got %v", err)
	assert.EqualValues(t, 0, c.hits.Load(), "redirects must not be followed")
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := uploaderCfg(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	err := newUploader(t, cfg).Send(context.Background(), []byte("p"))
	assert.Equal(t, ReasonTimeout, ReasonOf(err), "got %v", err)
}

func TestSend_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newUploader(t, uploaderCfg(url)).Send(context.Background(), []byte("p"))
	assert.Equal(t, ReasonTransport, ReasonOf(err), "got %v", err)
}

func mtlsServer(t *testing.T, c *collector) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(c)
	srv.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func TestSend_ClientCertificate(t *testing.T) {
	c := &collector{}
	srv := mtlsServer(t, c)
	dir := t.TempDir()

	cfg := uploaderCfg(srv.URL)
	cfg.CAFile = testcert.WriteCA(t, dir, srv.Certificate())
	cfg.CertFile, cfg.KeyFile = testcert.Write(t, dir)

	u := newUploader(t, cfg)
	assert.True(t, u.HasIdentity())
	require.NoError(t, u.Send(context.Background(), []byte("p")))
	assert.EqualValues(t, 1, c.hits.Load())
}

func TestSend_NoIdentityProceedsWithoutCertificate(t *testing.T) {
	c := &collector{}
	srv := mtlsServer(t, c)
	dir := t.TempDir()

	cfg := uploaderCfg(srv.URL)
	cfg.CAFile = testcert.WriteCA(t, dir, srv.Certificate())
	cfg.CertFile = filepath.Join(dir, "missing.pem")
	cfg.KeyFile = filepath.Join(dir, "missing.key")

	u := newUploader(t, cfg)
	assert.False(t, u.HasIdentity())

	// The request goes out without a certificate, and this server rejects
	// the handshake.
	err := u.Send(context.Background(), []byte("p"))
	assert.Equal(t, ReasonTransport, ReasonOf(err), "got %v", err)
	assert.EqualValues(t, 0, c.hits.Load())
}

func TestSend_IdentityAppearsLater(t *testing.T) {
	c := &collector{}
	srv := mtlsServer(t, c)
	dir := t.TempDir()

	cfg := uploaderCfg(srv.URL)
	cfg.CAFile = testcert.WriteCA(t, dir, srv.Certificate())
	cfg.CertFile = filepath.Join(dir, "client.pem")
	cfg.KeyFile = filepath.Join(dir, "client.key")
	cfg.RequireClientCert = true

	u := newUploader(t, cfg)
	err := u.Send(context.Background(), []byte("p"))
	assert.Equal(t, ReasonIdentity, ReasonOf(err), "got %v", err)
	assert.EqualValues(t, 0, c.hits.Load(), "fail closed must not reach the network")

	testcert.Write(t, dir)
	require.NoError(t, u.Send(context.Background(), []byte("p")))
	assert.EqualValues(t, 1, c.hits.Load())
}

func TestSend_CircuitBreaker(t *testing.T) {
	c := &collector{status: http.StatusBadGateway}
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := uploaderCfg(srv.URL)
	cfg.Breaker = config.BreakerConfig{Enabled: true, MaxFailures: 2, OpenTimeout: time.Hour}
	u := newUploader(t, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, ReasonStatus, ReasonOf(u.Send(context.Background(), []byte("p"))))
	}
	err := u.Send(context.Background(), []byte("p"))
	assert.Equal(t, ReasonCircuitOpen, ReasonOf(err), "got %v", err)
	assert.EqualValues(t, 2, c.hits.Load(), "an open breaker must not reach the network")
}

func TestNew_BadCAFile(t *testing.T) {
	cfg := uploaderCfg("https://collector.example.com")
	cfg.CAFile = filepath.Join(t.TempDir(), "absent.pem")
	_, err := New(cfg, discard())
	assert.Error(t, err)
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, Reason(""), ReasonOf(nil))
	assert.Equal(t, ReasonTransport, ReasonOf(errors.New("boom")))
	wrapped := &Error{Reason: ReasonTimeout, Err: context.DeadlineExceeded}
	assert.Equal(t, ReasonTimeout, ReasonOf(wrapped))
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}
