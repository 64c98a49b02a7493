package identity

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
)

const attemptTimeout = 10 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotConfigured is returned when a bootstrap is needed but no code or
// email was provided.
var ErrNotConfigured = errors.New("identity: missing client certificate and bootstrap data")

type bootstrapRequest struct {
	Code  string `json:"bootstrap_code"`
	Email string `json:"email"`
}

type bootstrapResponse struct {
	Data struct {
		Cert string `json:"cert"`
		Key  string `json:"key"`
	} `json:"data"`
}

// Bootstrap provisions the client identity named in up from the authority
// in cfg. It blocks until the authority answers, ctx is cancelled, or the
// answer turns out to be unusable.
func Bootstrap(ctx context.Context, cfg config.BootstrapConfig, up config.UploaderConfig, logger *slog.Logger) error {
	if !cfg.Configured() {
		return ErrNotConfigured
	}
	logger = logsink.For(logger, "bootstrap")

	pool, err := RootCAs(up.CAFile)
	if err != nil {
		return err
	}
	client := &http.Client{
		Timeout: attemptTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				RootCAs:            pool,
				InsecureSkipVerify: up.InsecureSkipVerify, //nolint:gosec // user-configured
			},
		},
	}
	defer client.CloseIdleConnections()

	body, err := json.Marshal(bootstrapRequest{Code: cfg.Code, Email: cfg.Email})
	if err != nil {
		return fmt.Errorf("identity: encode request: %w", err)
	}

	var raw []byte
	for failures := 0; ; failures++ {
		logger.Debug("bootstrap: requesting client identity", "url", cfg.URL)
		raw, err = put(ctx, client, cfg.URL, body)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := retryDelay(cfg.RetryInterval, failures, jitter())
		logger.Warn("bootstrap: attempt failed, will retry", "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	var resp bootstrapResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	if resp.Data.Cert == "" || resp.Data.Key == "" {
		return errors.New("identity: response carries no certificate or key")
	}

	if err := writeFile(up.CertFile, []byte(resp.Data.Cert), 0o644); err != nil {
		return err
	}
	if err := writeFile(up.KeyFile, []byte(resp.Data.Key), 0o600); err != nil {
		return err
	}
	logger.Info("bootstrap: completed", "cert_file", up.CertFile)
	return nil
}

func put(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("authority responded with %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("identity: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("identity: chmod %s: %w", path, err)
	}
	return nil
}
