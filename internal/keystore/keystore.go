// Package keystore resolves the application private key from its
// configured source: inline text, a file, a Vault KV secret or a
// PKCS#12 archive.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
)

// SourceType identifies where a private key comes from.
type SourceType string

const (
	// SourceTypeInline is a key embedded in configuration.
	SourceTypeInline SourceType = "inline"
	// SourceTypeFile is a key read from a local file.
	SourceTypeFile SourceType = "file"
	// SourceTypeVault is a key read from a Vault KV secret.
	SourceTypeVault SourceType = "vault"
	// SourceTypePKCS12 is a key extracted from a PKCS#12 archive.
	SourceTypePKCS12 SourceType = "pkcs12"
)

// Common keystore errors.
var (
	// ErrKeyNotFound is returned when the source holds no key.
	ErrKeyNotFound = errors.New("private key not found")
	// ErrSourceNotConfigured is returned when no usable source is configured.
	ErrSourceNotConfigured = errors.New("private key source not configured")
)

// Source supplies the application private key.
type Source interface {
	// Type returns the source type.
	Type() SourceType

	// PrivateKey returns the key material. Sources re-read their backing
	// store on every call so rotated keys are picked up.
	PrivateKey(ctx context.Context) (sign.KeyMaterial, error)
}

// InlineSource returns a fixed key.
type InlineSource struct {
	key sign.KeyMaterial
}

// NewInlineSource creates a source for an inline key.
func NewInlineSource(key string) (*InlineSource, error) {
	km := sign.KeyMaterial(strings.TrimSpace(key))
	if km.IsBlank() {
		return nil, fmt.Errorf("%w: inline key is empty", ErrSourceNotConfigured)
	}
	return &InlineSource{key: km}, nil
}

// Type returns the source type.
func (s *InlineSource) Type() SourceType { return SourceTypeInline }

// PrivateKey returns the inline key.
func (s *InlineSource) PrivateKey(_ context.Context) (sign.KeyMaterial, error) {
	return s.key, nil
}

// FileSource reads the key from a file holding PEM or raw base64.
type FileSource struct {
	path string
}

// NewFileSource creates a source for a key file. The file must exist.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: key file path is empty", ErrSourceNotConfigured)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceNotConfigured, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceNotConfigured, path)
	}
	return &FileSource{path: path}, nil
}

// Type returns the source type.
func (s *FileSource) Type() SourceType { return SourceTypeFile }

// PrivateKey reads the key file.
func (s *FileSource) PrivateKey(_ context.Context) (sign.KeyMaterial, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read private key %s: %w", s.path, err)
	}
	km := sign.KeyMaterial(strings.TrimSpace(string(data)))
	if km.IsBlank() {
		return "", fmt.Errorf("%w: %s is empty", ErrKeyNotFound, s.path)
	}
	return km, nil
}

// FromConfig builds the source selected by configuration. Precedence is
// file, PKCS#12, Vault, then inline.
func FromConfig(cfg *config.Config, logger observability.Logger) (Source, error) {
	if cfg == nil {
		return nil, ErrSourceNotConfigured
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	var (
		src Source
		err error
	)
	switch {
	case cfg.AppPrivateKeyFile != "":
		src, err = NewFileSource(cfg.AppPrivateKeyFile)
	case cfg.AppPrivateKeyPKCS12 != nil:
		src, err = NewPKCS12Source(cfg.AppPrivateKeyPKCS12.File, cfg.AppPrivateKeyPKCS12.Password)
	case cfg.AppPrivateKeyVault != nil:
		src, err = NewVaultSource(cfg.Vault, cfg.AppPrivateKeyVault, logger)
	case strings.TrimSpace(cfg.AppPrivateKey) != "":
		src, err = NewInlineSource(cfg.AppPrivateKey)
	default:
		return nil, ErrSourceNotConfigured
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("private key source selected", observability.String("source", string(src.Type())))
	return src, nil
}
