package identity

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math"
	"os"
	"time"
)

// Certificate status values.
const (
	StatusValid    = "valid"
	StatusExpiring = "expiring"
	StatusExpired  = "expired"
)

// expiringWindow is how close to NotAfter a certificate counts as expiring.
const expiringWindow = 30

// CertStatus describes the client certificate on disk.
type CertStatus struct {
	File     string    `json:"file"`
	Subject  string    `json:"subject"`
	Issuer   string    `json:"issuer"`
	NotAfter time.Time `json:"not_after"`
	DaysLeft int       `json:"days_left"`
	Status   string    `json:"status"`
}

// Inspect parses the first certificate in certFile and classifies it.
func Inspect(certFile string) (*CertStatus, error) {
	return inspectAt(certFile, time.Now())
}

func inspectAt(certFile string, now time.Time) (*CertStatus, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("identity: read certificate: %w", err)
	}

	var leaf *x509.Certificate
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		leaf, err = x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("identity: parse certificate: %w", err)
		}
		break
	}
	if leaf == nil {
		return nil, fmt.Errorf("identity: no certificate in %s", certFile)
	}

	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24
	cs := &CertStatus{
		File:     certFile,
		Subject:  leaf.Subject.CommonName,
		Issuer:   leaf.Issuer.CommonName,
		NotAfter: leaf.NotAfter.UTC(),
		DaysLeft: int(math.Floor(daysLeft)),
	}

	switch {
	case daysLeft <= 0:
		cs.Status = StatusExpired
	case daysLeft <= expiringWindow:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs, nil
}
