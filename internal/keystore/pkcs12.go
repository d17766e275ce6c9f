package keystore

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"

	"github.com/vyrodovalexey/alipaykernel/internal/sign"
)

// PKCS12Source extracts the key from a PKCS#12 archive holding one key
// and one certificate.
type PKCS12Source struct {
	path     string
	password string
}

// NewPKCS12Source creates a PKCS#12 source. The archive must exist.
func NewPKCS12Source(path, password string) (*PKCS12Source, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: pkcs12 file path is empty", ErrSourceNotConfigured)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceNotConfigured, err)
	}
	return &PKCS12Source{path: path, password: password}, nil
}

// Type returns the source type.
func (s *PKCS12Source) Type() SourceType { return SourceTypePKCS12 }

// PrivateKey decodes the archive and returns the key as a raw base64
// PKCS#8 body.
func (s *PKCS12Source) PrivateKey(_ context.Context) (sign.KeyMaterial, error) {
	key, _, err := s.decode()
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("encode pkcs12 key: %w", err)
	}
	return sign.KeyMaterial(base64.StdEncoding.EncodeToString(der)), nil
}

// Certificate returns the certificate stored next to the key.
func (s *PKCS12Source) Certificate() (*x509.Certificate, error) {
	_, c, err := s.decode()
	return c, err
}

func (s *PKCS12Source) decode() (*rsa.PrivateKey, *x509.Certificate, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read pkcs12 %s: %w", s.path, err)
	}

	key, c, err := pkcs12.Decode(data, s.password)
	if err != nil {
		return nil, nil, fmt.Errorf("decode pkcs12 %s: %w", s.path, err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("pkcs12 %s holds a %T key, not RSA", s.path, key)
	}
	return rsaKey, c, nil
}
