package sign

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const pemLineWidth = 64

// PEM block types used when wrapping raw key material.
const (
	BlockRSAPrivateKey = "RSA PRIVATE KEY"
	BlockPublicKey     = "PUBLIC KEY"
)

// KeyMaterial is a key as configured: either the bare base64 body or a
// complete PEM document.
type KeyMaterial string

// IsBlank reports whether the key is empty or whitespace only.
func (k KeyMaterial) IsBlank() bool {
	return strings.TrimSpace(string(k)) == ""
}

// IsPEM reports whether the key already carries PEM armor.
func (k KeyMaterial) IsPEM() bool {
	return strings.Contains(string(k), "-----BEGIN ")
}

// WrapPEM returns key as a PEM document of the given block type, folding
// the base64 body at 64 columns. Keys that are already PEM are returned
// unchanged.
func WrapPEM(key KeyMaterial, blockType string) []byte {
	if key.IsPEM() {
		return []byte(strings.TrimSpace(string(key)))
	}

	body := strings.Join(strings.Fields(string(key)), "")

	var b strings.Builder
	b.WriteString("-----BEGIN " + blockType + "-----\n")
	for len(body) > pemLineWidth {
		b.WriteString(body[:pemLineWidth])
		b.WriteByte('\n')
		body = body[pemLineWidth:]
	}
	b.WriteString(body)
	b.WriteString("\n-----END " + blockType + "-----")
	return []byte(b.String())
}

// ParsePrivateKey decodes an RSA private key in PKCS#1 or PKCS#8 form.
func ParsePrivateKey(key KeyMaterial) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(WrapPEM(key, BlockRSAPrivateKey))
	if block == nil {
		return nil, errors.New("private key is not valid PEM or base64")
	}

	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return k, nil
}

// ParsePublicKey decodes an RSA public key from a PKIX or PKCS#1 block,
// or from a certificate.
func ParsePublicKey(key KeyMaterial) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(WrapPEM(key, BlockPublicKey))
	if block == nil {
		return nil, errors.New("public key is not valid PEM or base64")
	}

	var parsed any
	switch block.Type {
	case "CERTIFICATE":
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		parsed = c.PublicKey
	case "RSA PUBLIC KEY":
		k, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		parsed = k
	default:
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		parsed = k
	}

	k, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", parsed)
	}
	return k, nil
}
