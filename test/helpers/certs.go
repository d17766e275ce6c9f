// Package helpers provides test fixtures for the signing kernel: RSA key
// pairs, application, gateway and root certificates written to a temp
// directory, and a fake gateway that signs its responses.
package helpers

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// KeyPair is an RSA key pair with the raw base64 bodies the gateway
// console exports.
type KeyPair struct {
	Private    *rsa.PrivateKey
	PrivateRaw string
	PublicRaw  string
}

// PrivatePEM returns the PKCS#1 private key as PEM.
func (k KeyPair) PrivatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k.Private),
	})
}

const keyPoolSize = 5

var (
	keyPoolOnce sync.Once
	keyPool     [keyPoolSize]KeyPair
	keyPoolErr  error
)

// Key returns the i-th pre-generated key pair. Keys are generated once
// per test binary to keep RSA generation cost down.
func Key(t testing.TB, i int) KeyPair {
	t.Helper()

	keyPoolOnce.Do(func() {
		for n := range keyPool {
			priv, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				keyPoolErr = err
				return
			}
			pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
			if err != nil {
				keyPoolErr = err
				return
			}
			keyPool[n] = KeyPair{
				Private:    priv,
				PrivateRaw: base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(priv)),
				PublicRaw:  base64.StdEncoding.EncodeToString(pub),
			}
		}
	})
	if keyPoolErr != nil {
		t.Fatalf("generate key pool: %v", keyPoolErr)
	}
	return keyPool[i%keyPoolSize]
}

// CertSpec describes a certificate to issue.
type CertSpec struct {
	Serial    *big.Int
	Subject   pkix.Name
	IsCA      bool
	PublicKey crypto.PublicKey
	Algorithm x509.SignatureAlgorithm
}

// IssueCertificate issues a certificate signed by parent. A nil parent
// makes the certificate self-signed.
func IssueCertificate(
	t testing.TB,
	spec CertSpec,
	parent *x509.Certificate,
	parentKey crypto.Signer,
) (*x509.Certificate, []byte) {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber:          spec.Serial,
		Subject:               spec.Subject,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		IsCA:                  spec.IsCA,
		BasicConstraintsValid: spec.IsCA,
		SignatureAlgorithm:    spec.Algorithm,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	if parent == nil {
		parent = tmpl
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, spec.PublicKey, parentKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return c, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// RootSubject is the issuer of every fixture leaf certificate.
var RootSubject = pkix.Name{
	Country:            []string{"CN"},
	Organization:       []string{"Ant Financial"},
	OrganizationalUnit: []string{"Certification Authority"},
	CommonName:         "Ant Financial Certification Authority Class 2 R1",
}

// RootIssuerString is RootSubject rendered in reverse attribute order.
const RootIssuerString = "CN=Ant Financial Certification Authority Class 2 R1," +
	"OU=Certification Authority,O=Ant Financial,C=CN"

// Fixture is a complete set of credentials for one application.
type Fixture struct {
	Dir string

	AppKey      KeyPair
	AppKeyPath  string
	AppCert     *x509.Certificate
	AppCertPEM  []byte
	AppCertPath string

	RootKey      KeyPair
	RootCert     *x509.Certificate
	RootCertPEM  []byte
	RootECDSAPEM []byte
	RootPath     string

	GatewayKey      KeyPair
	GatewayCert     *x509.Certificate
	GatewayCertPEM  []byte
	GatewayCertPath string
}

// NewFixture issues application and gateway certificates under an
// RSA/SHA-256 root and writes them to a temp directory. The root file is
// a bundle with an extra ECDSA root that must not count towards the
// root chain SN.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()

	f := &Fixture{
		Dir:        t.TempDir(),
		AppKey:     Key(t, 0),
		GatewayKey: Key(t, 1),
		RootKey:    Key(t, 2),
	}

	f.RootCert, f.RootCertPEM = IssueCertificate(t, CertSpec{
		Serial:    big.NewInt(6823469034925357),
		Subject:   RootSubject,
		IsCA:      true,
		PublicKey: &f.RootKey.Private.PublicKey,
		Algorithm: x509.SHA256WithRSA,
	}, nil, f.RootKey.Private)

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}
	_, f.RootECDSAPEM = IssueCertificate(t, CertSpec{
		Serial:    big.NewInt(4216),
		Subject:   pkix.Name{CommonName: "ECC Root"},
		IsCA:      true,
		PublicKey: &ecKey.PublicKey,
		Algorithm: x509.ECDSAWithSHA256,
	}, nil, ecKey)

	f.AppCert, f.AppCertPEM = f.IssueLeaf(t, big.NewInt(2021001), "app", &f.AppKey.Private.PublicKey)
	f.GatewayCert, f.GatewayCertPEM = f.IssueLeaf(t, big.NewInt(2021002), "gateway", &f.GatewayKey.Private.PublicKey)

	f.AppKeyPath = f.Write(t, "app_private_key.txt", []byte(f.AppKey.PrivateRaw))
	f.AppCertPath = f.Write(t, "appCertPublicKey.crt", f.AppCertPEM)
	f.GatewayCertPath = f.Write(t, "alipayCertPublicKey_RSA2.crt", f.GatewayCertPEM)
	f.RootPath = f.Write(t, "alipayRootCert.crt", f.RootBundle())

	return f
}

// IssueLeaf issues an RSA/SHA-256 leaf certificate under the fixture root.
func (f *Fixture) IssueLeaf(t testing.TB, serial *big.Int, cn string, pub *rsa.PublicKey) (*x509.Certificate, []byte) {
	t.Helper()
	return IssueCertificate(t, CertSpec{
		Serial:    serial,
		Subject:   pkix.Name{CommonName: cn, Organization: []string{"Fixture"}},
		PublicKey: pub,
		Algorithm: x509.SHA256WithRSA,
	}, f.RootCert, f.RootKey.Private)
}

// RootBundle returns the ECDSA root followed by the RSA root.
func (f *Fixture) RootBundle() []byte {
	bundle := append([]byte{}, f.RootECDSAPEM...)
	return append(bundle, f.RootCertPEM...)
}

// Write stores data in the fixture directory and returns its path.
func (f *Fixture) Write(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
