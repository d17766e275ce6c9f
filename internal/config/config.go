// Package config provides configuration types and loading for the payment gateway kernel.
package config

import (
	"strings"
	"time"
	_ "time/tzdata" // default location must resolve on minimal images
)

// Gateway endpoints.
const (
	ProductionGatewayURL = "https://openapi.alipay.com/gateway.do"
	SandboxGatewayURL    = "https://openapi.alipaydev.com/gateway.do"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultCharset  = "utf-8"
	DefaultSignType = "RSA2"
	DefaultFormat   = "json"
	DefaultVersion  = "1.0"
	DefaultLocation = "Asia/Shanghai"
	DefaultTimeout  = 10 * time.Second
)

// Config is the client configuration.
type Config struct {
	// AppID is the application identifier issued by the gateway.
	AppID string `yaml:"app_id" json:"app_id"`

	// Sandbox selects the sandbox gateway.
	Sandbox bool `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`

	// GatewayURL overrides both the production and sandbox endpoints.
	GatewayURL string `yaml:"gateway_url,omitempty" json:"gateway_url,omitempty"`

	Charset  string `yaml:"charset,omitempty" json:"charset,omitempty"`
	SignType string `yaml:"sign_type,omitempty" json:"sign_type,omitempty"`
	Format   string `yaml:"format,omitempty" json:"format,omitempty"`
	Version  string `yaml:"version,omitempty" json:"version,omitempty"`

	// Location is the IANA time zone used for request timestamps.
	Location string `yaml:"location,omitempty" json:"location,omitempty"`

	AppAuthToken string `yaml:"app_auth_token,omitempty" json:"app_auth_token,omitempty"`
	NotifyURL    string `yaml:"notify_url,omitempty" json:"notify_url,omitempty"`

	// AppPrivateKey is the inline application private key (raw base64 or PEM).
	AppPrivateKey string `yaml:"app_private_key,omitempty" json:"app_private_key,omitempty"`

	// AppPrivateKeyFile is a file holding the application private key.
	// It takes precedence over AppPrivateKey.
	AppPrivateKeyFile string `yaml:"app_private_key_file,omitempty" json:"app_private_key_file,omitempty"`

	// AppPrivateKeyVault reads the private key from a Vault KV secret.
	AppPrivateKeyVault *VaultKeyConfig `yaml:"app_private_key_vault,omitempty" json:"app_private_key_vault,omitempty"`

	// AppPrivateKeyPKCS12 reads the private key from a PKCS#12 archive.
	AppPrivateKeyPKCS12 *PKCS12Config `yaml:"app_private_key_pkcs12,omitempty" json:"app_private_key_pkcs12,omitempty"`

	// AppPublicCertFile is the application public key certificate.
	AppPublicCertFile string `yaml:"app_public_cert_file,omitempty" json:"app_public_cert_file,omitempty"`

	// AlipayPublicKey is the inline gateway public key (raw base64 or PEM).
	AlipayPublicKey string `yaml:"alipay_public_key,omitempty" json:"alipay_public_key,omitempty"`

	// AlipayPublicCertFile is the gateway public key certificate.
	AlipayPublicCertFile string `yaml:"alipay_public_cert_file,omitempty" json:"alipay_public_cert_file,omitempty"`

	// AlipayRootCertFile is the gateway root certificate bundle.
	AlipayRootCertFile string `yaml:"alipay_root_cert_file,omitempty" json:"alipay_root_cert_file,omitempty"`

	// Timeout bounds a single gateway round trip.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	RateLimit      *RateLimitConfig      `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty"`
	CertCache      *CertCacheConfig      `yaml:"cert_cache,omitempty" json:"cert_cache,omitempty"`

	// WatchCerts reloads certificate files when they change on disk.
	WatchCerts bool `yaml:"watch_certs,omitempty" json:"watch_certs,omitempty"`

	Vault   *VaultConfig   `yaml:"vault,omitempty" json:"vault,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
	Tracing *TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// RateLimitConfig limits outbound gateway calls.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// CircuitBreakerConfig configures the outbound circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int `yaml:"threshold" json:"threshold"`

	// Timeout is how long the breaker stays open before half-open.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests int `yaml:"half_open_requests,omitempty" json:"half_open_requests,omitempty"`

	// Interval is the closed-state window after which counts reset.
	Interval Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// VaultConfig configures the Vault client used for key material.
type VaultConfig struct {
	Address    string   `yaml:"address" json:"address"`
	Token      string   `yaml:"token,omitempty" json:"token,omitempty"`
	Namespace  string   `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	CACert     string   `yaml:"ca_cert,omitempty" json:"ca_cert,omitempty"`
	SkipVerify bool     `yaml:"skip_verify,omitempty" json:"skip_verify,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// VaultKeyConfig locates a private key inside a Vault KV secret.
type VaultKeyConfig struct {
	// Mount is the KV secrets engine mount, "secret" when empty.
	Mount string `yaml:"mount,omitempty" json:"mount,omitempty"`

	// Path is the secret path below the mount.
	Path string `yaml:"path" json:"path"`

	// Field is the secret field holding the key, "private_key" when empty.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// KVVersion forces KV v1 or v2. Zero tries v2 then v1.
	KVVersion int `yaml:"kv_version,omitempty" json:"kv_version,omitempty"`
}

// PKCS12Config locates a private key inside a PKCS#12 archive.
type PKCS12Config struct {
	File     string `yaml:"file" json:"file"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// DefaultConfig returns a configuration with defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset protocol fields.
func (c *Config) ApplyDefaults() {
	if c.Charset == "" {
		c.Charset = DefaultCharset
	}
	if c.SignType == "" {
		c.SignType = DefaultSignType
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.Timeout <= 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
}

// Endpoint returns the gateway URL: the override when set, otherwise
// the sandbox or production endpoint.
func (c *Config) Endpoint() string {
	if strings.TrimSpace(c.GatewayURL) != "" {
		return c.GatewayURL
	}
	if c.Sandbox {
		return SandboxGatewayURL
	}
	return ProductionGatewayURL
}

// CertMode reports whether requests carry certificate serial numbers.
// It requires both the application certificate and the root bundle.
func (c *Config) CertMode() bool {
	return c.AppPublicCertFile != "" && c.AlipayRootCertFile != ""
}

// TimeLocation loads the configured time zone.
func (c *Config) TimeLocation() (*time.Location, error) {
	name := c.Location
	if name == "" {
		name = DefaultLocation
	}
	return time.LoadLocation(name)
}
