package cert

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"os"
	"strings"
)

const endCertificate = "-----END CERTIFICATE-----"

// ParseCertificate parses the first certificate in PEM data. Other PEM
// blocks, such as a private key stored alongside, are skipped. DER input
// is accepted as well.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, NewCertificateErrorWithCause("", "failed to parse certificate", err)
		}
		return c, nil
	}

	if bytes.Contains(data, []byte("-----BEGIN")) || len(bytes.TrimSpace(data)) == 0 {
		return nil, NewCertificateErrorWithCause("", "no certificate block", ErrNoCertificate)
	}

	c, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, NewCertificateErrorWithCause("", "failed to parse certificate", err)
	}
	return c, nil
}

// ParsePEMCertificates parses PEM-encoded certificates.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			continue
		}

		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, NewCertificateErrorWithCause("", "failed to parse certificate", err)
		}

		certs = append(certs, c)
	}

	if len(certs) == 0 {
		return nil, NewCertificateErrorWithCause("", "no certificates found in PEM data", ErrNoCertificate)
	}

	return certs, nil
}

// SplitBundle splits a PEM bundle at each END CERTIFICATE marker and
// re-appends the marker to every segment. The trailing remainder after
// the last marker is dropped.
func SplitBundle(bundle []byte) []string {
	parts := strings.Split(string(bundle), endCertificate)
	segments := make([]string, 0, len(parts))
	for _, p := range parts[:len(parts)-1] {
		segments = append(segments, p+endCertificate)
	}
	return segments
}

// ReadFile reads a certificate file.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- certificate path from trusted config
	if err != nil {
		return nil, NewCertificateErrorWithCause(path, "failed to read certificate file", err)
	}
	return data, nil
}
