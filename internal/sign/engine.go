package sign

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // legacy RSA sign type is SHA-1 by protocol
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// Algorithm is a gateway sign_type.
type Algorithm string

// Supported sign types.
const (
	// RSA signs a SHA-1 digest. Kept for legacy applications.
	RSA Algorithm = "RSA"
	// RSA2 signs a SHA-256 digest.
	RSA2 Algorithm = "RSA2"
)

// ParseAlgorithm validates a sign_type value.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case RSA, RSA2:
		return Algorithm(s), nil
	default:
		return "", util.NewInvalidArgumentError("sign_type", fmt.Sprintf("unsupported sign type %q", s))
	}
}

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	return string(a)
}

func (a Algorithm) digest(content []byte) (crypto.Hash, []byte) {
	if a == RSA2 {
		sum := sha256.Sum256(content)
		return crypto.SHA256, sum[:]
	}
	sum := sha1.Sum(content) //nolint:gosec // see import
	return crypto.SHA1, sum[:]
}

// Engine signs request content and verifies response payloads.
type Engine struct {
	charset encoding.Encoding
	logger  observability.Logger
	metrics *observability.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCharset sets the charset content is encoded in before signing.
// Unknown charsets are ignored; validate them with LookupCharset first.
func WithCharset(name string) EngineOption {
	return func(e *Engine) {
		if enc, err := LookupCharset(name); err == nil {
			e.charset = enc
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the engine metrics.
func WithMetrics(metrics *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// NewEngine creates a new Engine. The default charset is UTF-8.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		charset: unicode.UTF8,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sign signs content with the private key and returns the base64
// signature.
func (e *Engine) Sign(content []byte, key KeyMaterial, alg Algorithm) (string, error) {
	sig, err := e.sign(content, key, alg)
	e.metrics.RecordSign(alg.String(), err)
	if err != nil {
		e.logger.Debug("sign failed",
			observability.String("sign_type", alg.String()),
			observability.Error(err),
		)
	}
	return sig, err
}

func (e *Engine) sign(content []byte, key KeyMaterial, alg Algorithm) (string, error) {
	if key.IsBlank() {
		return "", util.NewInvalidSignError("application private key is empty")
	}

	priv, err := ParsePrivateKey(key)
	if err != nil {
		return "", util.NewInvalidSignErrorWithCause("load application private key", err)
	}

	encoded, err := Encode(e.charset, content)
	if err != nil {
		return "", util.NewInvalidSignErrorWithCause("encode sign content", err)
	}

	hash, digest := alg.digest(encoded)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, hash, digest)
	if err != nil {
		return "", util.NewInvalidSignErrorWithCause("rsa sign", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SignParams signs the canonical form of params.
func (e *Engine) SignParams(params Params, key KeyMaterial, alg Algorithm) (string, error) {
	return e.Sign([]byte(Canonicalize(params)), key, alg)
}

// Verify checks signature against the JSON serialization of payload.
//
// Payloads that implement json.Marshaler control their own bytes, which
// lets callers verify against the exact field order the gateway signed.
// A blank key is an error; a mismatch or undecodable signature is not.
func (e *Engine) Verify(payload any, signature string, key KeyMaterial, alg Algorithm) (bool, error) {
	ok, err := e.verify(payload, signature, key, alg)
	e.metrics.RecordVerify(alg.String(), ok, err)
	if err == nil && !ok {
		e.logger.Warn("signature mismatch",
			observability.String("sign_type", alg.String()),
		)
	}
	return ok, err
}

func (e *Engine) verify(payload any, signature string, key KeyMaterial, alg Algorithm) (bool, error) {
	if key.IsBlank() {
		return false, util.NewInvalidSignError("gateway public key is empty")
	}

	pub, err := ParsePublicKey(key)
	if err != nil {
		return false, util.NewInvalidSignErrorWithCause("load gateway public key", err)
	}

	content, err := MarshalPayload(payload)
	if err != nil {
		return false, util.NewRuntimeErrorWithCause("serialize verification payload", err)
	}

	encoded, err := Encode(e.charset, content)
	if err != nil {
		return false, util.NewInvalidSignErrorWithCause("encode verification payload", err)
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false, nil
	}

	hash, digest := alg.digest(encoded)
	return rsa.VerifyPKCS1v15(pub, hash, digest, sig) == nil, nil
}

// MarshalPayload serializes payload for verification. Raw bytes and
// strings are used as is; everything else is JSON-encoded without HTML
// escaping.
func MarshalPayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	case string:
		return []byte(p), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
