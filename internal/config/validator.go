package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/alipaykernel/internal/sign"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is matches util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return errors.Is(target, util.ErrConfigInvalid)
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates client configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a client configuration.
func ValidateConfig(config *Config) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateProtocol(config)
	v.validatePrivateKey(config)
	v.validateGatewayKey(config)

	if config.Timeout < 0 {
		v.addError("timeout", "timeout cannot be negative")
	}
	if config.RateLimit != nil {
		v.validateRateLimit(config.RateLimit, "rate_limit")
	}
	if config.CircuitBreaker != nil {
		v.validateCircuitBreaker(config.CircuitBreaker, "circuit_breaker")
	}
	if config.CertCache != nil {
		v.validateCertCache(config.CertCache, "cert_cache")
	}
	if config.Logging != nil {
		v.validateLogging(config.Logging, "logging")
	}
	if config.Tracing != nil {
		if err := util.ValidateRatio(config.Tracing.SamplingRate); err != nil {
			v.addError("tracing.sampling_rate", err.Error())
		}
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateProtocol validates the system parameter settings.
func (v *Validator) validateProtocol(config *Config) {
	if err := util.ValidateNonEmpty(config.AppID, "app_id"); err != nil {
		v.addError("app_id", err.Error())
	}
	if config.GatewayURL != "" {
		if err := util.ValidateURL(config.GatewayURL); err != nil {
			v.addError("gateway_url", err.Error())
		}
	}
	if _, err := sign.LookupCharset(config.Charset); err != nil {
		v.addError("charset", err.Error())
	}
	if config.SignType != "" {
		if _, err := sign.ParseAlgorithm(config.SignType); err != nil {
			v.addError("sign_type", "sign_type must be RSA or RSA2")
		}
	}
	if config.Format != "" && config.Format != DefaultFormat {
		v.addError("format", "format must be json")
	}
	if config.Location != "" {
		if _, err := time.LoadLocation(config.Location); err != nil {
			v.addError("location", "unknown time zone "+config.Location)
		}
	}
}

// validatePrivateKey requires at least one private key source.
func (v *Validator) validatePrivateKey(config *Config) {
	hasKey := strings.TrimSpace(config.AppPrivateKey) != "" ||
		config.AppPrivateKeyFile != "" ||
		config.AppPrivateKeyVault != nil ||
		config.AppPrivateKeyPKCS12 != nil
	if !hasKey {
		v.addError("app_private_key",
			"one of app_private_key, app_private_key_file, app_private_key_vault or app_private_key_pkcs12 is required")
	}

	if kv := config.AppPrivateKeyVault; kv != nil {
		if config.Vault == nil || config.Vault.Address == "" {
			v.addError("vault.address", "vault address is required for app_private_key_vault")
		} else if err := util.ValidateURL(config.Vault.Address); err != nil {
			v.addError("vault.address", err.Error())
		}
		if kv.Path == "" {
			v.addError("app_private_key_vault.path", "path is required")
		}
		if kv.KVVersion < 0 || kv.KVVersion > 2 {
			v.addError("app_private_key_vault.kv_version", "kv_version must be 0, 1 or 2")
		}
	}

	if p12 := config.AppPrivateKeyPKCS12; p12 != nil && p12.File == "" {
		v.addError("app_private_key_pkcs12.file", "file is required")
	}
}

// validateGatewayKey requires a way to verify responses and a complete
// certificate set when certificate mode is used.
func (v *Validator) validateGatewayKey(config *Config) {
	if strings.TrimSpace(config.AlipayPublicKey) == "" && config.AlipayPublicCertFile == "" {
		v.addError("alipay_public_key", "one of alipay_public_key or alipay_public_cert_file is required")
	}

	switch {
	case config.AppPublicCertFile != "" && config.AlipayRootCertFile == "":
		v.addError("alipay_root_cert_file", "alipay_root_cert_file is required with app_public_cert_file")
	case config.AppPublicCertFile == "" && config.AlipayRootCertFile != "":
		v.addError("app_public_cert_file", "app_public_cert_file is required with alipay_root_cert_file")
	}

	if config.CertMode() && config.AlipayPublicCertFile == "" {
		v.addError("alipay_public_cert_file", "alipay_public_cert_file is required in certificate mode")
	}
}

// validateRateLimit validates rate limit configuration.
func (v *Validator) validateRateLimit(rl *RateLimitConfig, path string) {
	if !rl.Enabled {
		return
	}

	if rl.RequestsPerSecond <= 0 {
		v.addError(path+".requests_per_second", "requests_per_second must be positive")
	}

	if rl.Burst <= 0 {
		v.addError(path+".burst", "burst must be positive")
	}
}

// validateCircuitBreaker validates circuit breaker configuration.
func (v *Validator) validateCircuitBreaker(cb *CircuitBreakerConfig, path string) {
	if !cb.Enabled {
		return
	}

	if cb.Threshold <= 0 {
		v.addError(path+".threshold", "threshold must be positive")
	}

	if cb.Timeout < 0 {
		v.addError(path+".timeout", "timeout cannot be negative")
	}

	if cb.HalfOpenRequests < 0 {
		v.addError(path+".half_open_requests", "half_open_requests cannot be negative")
	}
}

// validateCertCache validates certificate cache configuration.
func (v *Validator) validateCertCache(cc *CertCacheConfig, path string) {
	if !cc.Enabled {
		return
	}

	if cc.Type != "" {
		if err := util.ValidateOneOf(cc.Type, "type", CacheTypeMemory, CacheTypeRedis); err != nil {
			v.addError(path+".type", err.Error())
		}
	}

	if cc.TTL < 0 {
		v.addError(path+".ttl", "ttl cannot be negative")
	}

	if cc.Type != CacheTypeRedis {
		return
	}
	if cc.Redis == nil || cc.Redis.URL == "" {
		v.addError(path+".redis.url", "redis url is required for redis cache")
		return
	}
	if err := util.ValidateRatio(cc.Redis.TTLJitter); err != nil {
		v.addError(path+".redis.ttl_jitter", err.Error())
	}
}

// validateLogging validates logging configuration.
func (v *Validator) validateLogging(l *LoggingConfig, path string) {
	if l.Level != "" {
		if err := util.ValidateOneOf(l.Level, "level", "debug", "info", "warn", "error"); err != nil {
			v.addError(path+".level", err.Error())
		}
	}
	if l.Format != "" {
		if err := util.ValidateOneOf(l.Format, "format", "json", "console"); err != nil {
			v.addError(path+".format", err.Error())
		}
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
