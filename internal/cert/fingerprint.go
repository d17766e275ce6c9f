package cert

import (
	"crypto/md5" //nolint:gosec // the gateway defines certificate SNs as MD5 digests
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Signature algorithms whose certificates take part in the root chain SN.
const (
	SHA1WithRSAEncryption   = "sha1WithRSAEncryption"
	SHA256WithRSAEncryption = "sha256WithRSAEncryption"
)

// ChainSeparator joins the fingerprints of a root chain.
const ChainSeparator = "_"

// shortNames maps attribute OIDs to the short names OpenSSL prints.
var shortNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.4":                    "SN",
	"2.5.4.5":                    "serialNumber",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.9":                    "street",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.12":                   "title",
	"2.5.4.17":                   "postalCode",
	"2.5.4.42":                   "GN",
	"1.2.840.113549.1.9.1":       "emailAddress",
	"0.9.2342.19200300.100.1.1":  "UID",
	"0.9.2342.19200300.100.1.25": "DC",
}

// AttributeName returns the OpenSSL short name for an attribute type, or
// its dotted form when none is known.
func AttributeName(oid asn1.ObjectIdentifier) string {
	s := oid.String()
	if name, ok := shortNames[s]; ok {
		return name
	}
	return s
}

// SignatureAlgorithmName returns the OpenSSL long name of a certificate
// signature algorithm.
func SignatureAlgorithmName(alg x509.SignatureAlgorithm) string {
	switch alg {
	case x509.SHA1WithRSA:
		return SHA1WithRSAEncryption
	case x509.SHA256WithRSA:
		return SHA256WithRSAEncryption
	case x509.SHA384WithRSA:
		return "sha384WithRSAEncryption"
	case x509.SHA512WithRSA:
		return "sha512WithRSAEncryption"
	case x509.MD5WithRSA:
		return "md5WithRSAEncryption"
	case x509.ECDSAWithSHA256:
		return "ecdsa-with-SHA256"
	case x509.ECDSAWithSHA384:
		return "ecdsa-with-SHA384"
	case x509.ECDSAWithSHA512:
		return "ecdsa-with-SHA512"
	case x509.PureEd25519:
		return "ED25519"
	default:
		return alg.String()
	}
}

// IssuerString renders the issuer attributes in reverse certificate
// order as comma-joined key=value pairs.
func IssuerString(c *x509.Certificate) string {
	names := c.Issuer.Names
	parts := make([]string, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		parts = append(parts, fmt.Sprintf("%s=%v", AttributeName(names[i].Type), names[i].Value))
	}
	return strings.Join(parts, ",")
}

// Fingerprint returns the certificate SN of c: the MD5 hex digest of the
// reversed issuer string followed by the decimal serial number.
func Fingerprint(c *x509.Certificate) string {
	return fingerprint(IssuerString(c), c.SerialNumber)
}

func fingerprint(issuer string, serial *big.Int) string {
	sum := md5.Sum([]byte(issuer + serial.String())) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// FingerprintOf parses a PEM or DER certificate and returns its SN.
func FingerprintOf(data []byte) (string, error) {
	c, err := ParseCertificate(data)
	if err != nil {
		return "", err
	}
	return Fingerprint(c), nil
}

// ChainFingerprintOf returns the root chain SN of a PEM bundle: the SNs of
// the RSA-signed (SHA-1 or SHA-256) certificates in file order, joined by
// an underscore. It reports false when no certificate qualifies.
func ChainFingerprintOf(bundle []byte) (string, bool, error) {
	var sns []string
	for i, segment := range SplitBundle(bundle) {
		if !strings.Contains(segment, "-----BEGIN CERTIFICATE-----") {
			continue
		}
		c, err := ParseCertificate([]byte(segment))
		if err != nil {
			return "", false, fmt.Errorf("certificate %d in bundle: %w", i, err)
		}

		switch SignatureAlgorithmName(c.SignatureAlgorithm) {
		case SHA1WithRSAEncryption, SHA256WithRSAEncryption:
		default:
			continue
		}

		serial, err := DecodeSerial(SerialText(c))
		if err != nil {
			return "", false, fmt.Errorf("certificate %d in bundle: %w", i, err)
		}
		sns = append(sns, fingerprint(IssuerString(c), serial))
	}

	if len(sns) == 0 {
		return "", false, nil
	}
	return strings.Join(sns, ChainSeparator), true, nil
}

// SerialText renders the serial number the way OpenSSL reports it:
// decimal when it fits in 64 bits, 0x-prefixed upper-case hex otherwise.
func SerialText(c *x509.Certificate) string {
	if c.SerialNumber.IsInt64() {
		return c.SerialNumber.String()
	}
	return "0x" + strings.ToUpper(c.SerialNumber.Text(16))
}

// DecodeSerial parses a textual serial number. A 0x prefix selects
// hexadecimal; the value may exceed 64 bits.
func DecodeSerial(text string) (*big.Int, error) {
	s := strings.TrimSpace(text)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || s == "" {
		return nil, fmt.Errorf("invalid serial number %q", text)
	}
	return n, nil
}
