package keystore

import (
	"context"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
)

// Vault defaults.
const (
	DefaultVaultMount = "secret"
	DefaultVaultField = "private_key"
)

// VaultSource reads the key from a Vault KV secret.
type VaultSource struct {
	client    *vaultapi.Client
	mount     string
	path      string
	field     string
	kvVersion int
	logger    observability.Logger
}

// NewVaultSource creates a Vault-backed source with token authentication.
func NewVaultSource(
	vcfg *config.VaultConfig, kcfg *config.VaultKeyConfig, logger observability.Logger,
) (*VaultSource, error) {
	if vcfg == nil || vcfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrSourceNotConfigured)
	}
	if kcfg == nil || kcfg.Path == "" {
		return nil, fmt.Errorf("%w: vault secret path is required", ErrSourceNotConfigured)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = vcfg.Address
	if vcfg.Timeout > 0 {
		apiConfig.Timeout = vcfg.Timeout.Duration()
	}
	if vcfg.CACert != "" || vcfg.SkipVerify {
		if err := apiConfig.ConfigureTLS(&vaultapi.TLSConfig{
			CACert:   vcfg.CACert,
			Insecure: vcfg.SkipVerify,
		}); err != nil {
			return nil, fmt.Errorf("configure vault TLS: %w", err)
		}
	}

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if vcfg.Token != "" {
		client.SetToken(vcfg.Token)
	}
	if vcfg.Namespace != "" {
		client.SetNamespace(vcfg.Namespace)
	}

	mount := strings.Trim(kcfg.Mount, "/")
	if mount == "" {
		mount = DefaultVaultMount
	}
	field := kcfg.Field
	if field == "" {
		field = DefaultVaultField
	}

	return &VaultSource{
		client:    client,
		mount:     mount,
		path:      strings.Trim(kcfg.Path, "/"),
		field:     field,
		kvVersion: kcfg.KVVersion,
		logger:    logger.With(observability.String("component", "keystore.vault")),
	}, nil
}

// Type returns the source type.
func (s *VaultSource) Type() SourceType { return SourceTypeVault }

// PrivateKey reads the configured field of the secret.
func (s *VaultSource) PrivateKey(ctx context.Context) (sign.KeyMaterial, error) {
	data, err := s.read(ctx)
	if err != nil {
		return "", err
	}

	raw, ok := data[s.field]
	if !ok {
		return "", fmt.Errorf("%w: field %q missing in %s/%s", ErrKeyNotFound, s.field, s.mount, s.path)
	}
	str, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is %T, not a string", ErrKeyNotFound, s.field, raw)
	}
	km := sign.KeyMaterial(strings.TrimSpace(str))
	if km.IsBlank() {
		return "", fmt.Errorf("%w: field %q is empty", ErrKeyNotFound, s.field)
	}
	return km, nil
}

// read fetches the secret data, trying KV v2 before v1 unless pinned.
func (s *VaultSource) read(ctx context.Context) (map[string]interface{}, error) {
	versions := []int{2, 1}
	if s.kvVersion == 1 || s.kvVersion == 2 {
		versions = []int{s.kvVersion}
	}

	var lastErr error
	for _, v := range versions {
		data, err := s.readVersion(ctx, v)
		if err == nil {
			return data, nil
		}
		lastErr = err
		s.logger.Debug("vault read failed",
			observability.Int("kv_version", v),
			observability.Error(err))
	}
	return nil, lastErr
}

func (s *VaultSource) readVersion(ctx context.Context, version int) (map[string]interface{}, error) {
	fullPath := s.mount + "/" + s.path
	if version == 2 {
		fullPath = s.mount + "/data/" + s.path
	}

	secret, err := s.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("read vault secret %s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, fullPath)
	}

	if version == 1 {
		return secret.Data, nil
	}

	// KV v2 wraps data in a "data" key; deleted versions have data: null
	dataValue, hasData := secret.Data["data"]
	if !hasData || dataValue == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, fullPath)
	}
	data, ok := dataValue.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s has unexpected shape", ErrKeyNotFound, fullPath)
	}
	return data, nil
}
