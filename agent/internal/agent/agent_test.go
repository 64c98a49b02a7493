package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldtrack/agent/internal/codec"
	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/agent/internal/identity"
	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
	"github.com/fieldtrack/fieldtrack/agent/internal/testcert"
	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// collector accepts uploads while up is set.
type collector struct {
	up       atomic.Bool
	mu       sync.Mutex
	payloads [][]byte
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if !c.up.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	c.mu.Lock()
	c.payloads = append(c.payloads, body)
	c.mu.Unlock()
}

func (c *collector) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.payloads...)
}

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ClientName = "tracker-01"
	cfg.Sensor = config.SensorConfig{Type: "simulate", Interval: 2 * time.Millisecond}
	cfg.Shipper.Interval = 20 * time.Millisecond
	cfg.Shipper.ShutdownGrace = time.Second
	cfg.Sweeper.Interval = 20 * time.Millisecond
	cfg.Spool.Dir = filepath.Join(dir, "failed")
	cfg.Archive = config.ArchiveConfig{Enabled: true, Dir: filepath.Join(dir, "archive")}
	cfg.Uploader.URL = url
	cfg.Uploader.APIPath = "/api/gps/"
	cfg.Uploader.CertFile = filepath.Join(dir, "certs", "client.pem")
	cfg.Uploader.KeyFile = filepath.Join(dir, "certs", "client.key")
	cfg.Status.Textfile = filepath.Join(dir, "fieldtrack.prom")
	cfg.Status.TextfileInterval = 10 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func startAgent(t *testing.T, cfg *config.Config) (cancel func()) {
	t.Helper()
	_, logger := logsink.NewRecorder()
	a, err := New(cfg, logger)
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("agent did not stop")
		}
		assert.NoError(t, a.Close())
	}
}

func TestAgent_ShipsSensorData(t *testing.T) {
	c := &collector{}
	c.up.Store(true)
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	stop := startAgent(t, cfg)
	require.Eventually(t, func() bool { return len(c.received()) >= 2 }, 5*time.Second, 10*time.Millisecond)
	stop()

	dec, err := codec.New(-1)
	require.NoError(t, err)
	batch, err := dec.Decode(c.received()[0])
	require.NoError(t, err)
	require.NotEmpty(t, batch)
	assert.Equal(t, "TPV", batch[0].Class())

	archived, err := os.ReadDir(cfg.Archive.Dir)
	require.NoError(t, err)
	assert.NotEmpty(t, archived, "delivered payloads are archived")

	_, err = os.Stat(cfg.Status.Textfile)
	assert.NoError(t, err, "metrics textfile is written")
}

func TestAgent_SpoolsThenReplays(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Archive.Enabled = false
	stop := startAgent(t, cfg)
	defer stop()

	spooled := func() int {
		entries, err := os.ReadDir(cfg.Spool.Dir)
		if err != nil {
			return -1
		}
		return len(entries)
	}
	require.Eventually(t, func() bool { return spooled() >= 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, c.received())

	// Collector recovers: the sweeper drains the spool.
	c.up.Store(true)
	require.Eventually(t, func() bool { return len(c.received()) >= 2 }, 5*time.Second, 10*time.Millisecond)
}

// queueSource fills out without blocking, then waits for cancellation.
type queueSource struct {
	n      int
	queued chan struct{}
}

func (q *queueSource) Run(ctx context.Context, out chan<- types.Record) error {
	for i := 0; i < q.n; i++ {
		out <- types.Record{"class": "TPV", "seq": i}
	}
	close(q.queued)
	<-ctx.Done()
	return nil
}

func TestAgent_ShutdownFlushesQueuedRecords(t *testing.T) {
	c := &collector{}
	c.up.Store(true)
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Shipper.Interval = time.Hour
	cfg.Sweeper.Interval = time.Hour
	cfg.Status.Textfile = ""

	_, logger := logsink.NewRecorder()
	a, err := New(cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	src := &queueSource{n: recordQueue, queued: make(chan struct{})}
	a.source = src

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	<-src.queued
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}

	payloads := c.received()
	require.Len(t, payloads, 1, "one final flush")
	dec, err := codec.New(-1)
	require.NoError(t, err)
	batch, err := dec.Decode(payloads[0])
	require.NoError(t, err)
	assert.Len(t, batch, recordQueue)
	assert.Zero(t, a.buf.Len())
}

func TestEnsureIdentity(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		cfg := config.Default()
		cfg.Uploader.CertFile, cfg.Uploader.KeyFile = testcert.Write(t, t.TempDir())
		rec, logger := logsink.NewRecorder()

		require.NoError(t, EnsureIdentity(context.Background(), cfg, logger))
		assert.Zero(t, rec.Count(logsink.LevelWarning))
	})

	t.Run("missing, not required", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.Default()
		cfg.Uploader.CertFile = filepath.Join(dir, "c.pem")
		cfg.Uploader.KeyFile = filepath.Join(dir, "c.key")
		rec, logger := logsink.NewRecorder()

		require.NoError(t, EnsureIdentity(context.Background(), cfg, logger))
		assert.Equal(t, 1, rec.Count(logsink.LevelWarning))
	})

	t.Run("missing, required", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.Default()
		cfg.Uploader.RequireClientCert = true
		cfg.Uploader.CertFile = filepath.Join(dir, "c.pem")
		cfg.Uploader.KeyFile = filepath.Join(dir, "c.key")
		rec, logger := logsink.NewRecorder()

		err := EnsureIdentity(context.Background(), cfg, logger)
		assert.ErrorIs(t, err, identity.ErrNotConfigured)
		assert.Equal(t, 1, rec.Count(logsink.LevelCritical))
	})

	t.Run("expiring", func(t *testing.T) {
		dir := t.TempDir()
		pair := testcert.Generate(t, "tracker-01", time.Now().Add(5*24*time.Hour))
		cfg := config.Default()
		cfg.Uploader.CertFile = filepath.Join(dir, "c.pem")
		cfg.Uploader.KeyFile = filepath.Join(dir, "c.key")
		require.NoError(t, os.WriteFile(cfg.Uploader.CertFile, pair.CertPEM, 0o644))
		require.NoError(t, os.WriteFile(cfg.Uploader.KeyFile, pair.KeyPEM, 0o600))
		rec, logger := logsink.NewRecorder()

		require.NoError(t, EnsureIdentity(context.Background(), cfg, logger))
		assert.Equal(t, 1, rec.Count(logsink.LevelWarning))
	})
}
