package identity

import (
	"crypto/x509"
	"fmt"
	"os"
)

// Present reports whether both identity files are configured and are
// readable regular files.
func Present(certFile, keyFile string) bool {
	if certFile == "" || keyFile == "" {
		return false
	}
	return readable(certFile) && readable(keyFile)
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	return err == nil && fi.Mode().IsRegular()
}

// RootCAs loads a PEM bundle for verifying the collector. An empty path
// returns nil, meaning the system roots.
func RootCAs(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("identity: read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("identity: no valid certs in ca file %q", caFile)
	}
	return pool, nil
}
