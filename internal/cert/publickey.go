package cert

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"

	"github.com/vyrodovalexey/alipaykernel/internal/sign"
)

// PublicKeyOf extracts the RSA public key of a PEM or DER certificate and
// returns its base64 SubjectPublicKeyInfo body without PEM armor.
func PublicKeyOf(data []byte) (sign.KeyMaterial, error) {
	c, err := ParseCertificate(data)
	if err != nil {
		return "", err
	}
	return PublicKey(c)
}

// PublicKey returns the base64 SubjectPublicKeyInfo of c.
func PublicKey(c *x509.Certificate) (sign.KeyMaterial, error) {
	if _, ok := c.PublicKey.(*rsa.PublicKey); !ok {
		return "", NewCertificateErrorWithCause("", "unsupported public key", ErrNotRSA)
	}
	der, err := x509.MarshalPKIXPublicKey(c.PublicKey)
	if err != nil {
		return "", NewCertificateErrorWithCause("", "failed to marshal public key", err)
	}
	return sign.KeyMaterial(base64.StdEncoding.EncodeToString(der)), nil
}

// FileIdentity is the SN and public key of a certificate file.
type FileIdentity struct {
	Path      string
	SN        string
	PublicKey sign.KeyMaterial
}

// LoadIdentity reads a certificate file and derives its SN and public key.
func LoadIdentity(path string) (FileIdentity, error) {
	data, err := ReadFile(path)
	if err != nil {
		return FileIdentity{}, err
	}
	c, err := ParseCertificate(data)
	if err != nil {
		return FileIdentity{}, withPath(err, path)
	}
	key, err := PublicKey(c)
	if err != nil {
		return FileIdentity{}, withPath(err, path)
	}
	return FileIdentity{Path: path, SN: Fingerprint(c), PublicKey: key}, nil
}

// LoadChainSN reads a root certificate bundle and returns its chain SN.
// The file must hold at least one certificate; ok is false when none of
// them is RSA-signed.
func LoadChainSN(path string) (string, bool, error) {
	data, err := ReadFile(path)
	if err != nil {
		return "", false, err
	}
	if _, err := ParsePEMCertificates(data); err != nil {
		return "", false, withPath(err, path)
	}
	sn, ok, err := ChainFingerprintOf(data)
	if err != nil {
		return "", false, NewCertificateErrorWithCause(path, "invalid root certificate bundle", err)
	}
	return sn, ok, nil
}
