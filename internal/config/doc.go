// Package config provides configuration types and loading for the
// payment gateway kernel.
//
// This package defines the client configuration model, YAML loading
// with environment variable substitution, defaults and validation.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Defaults for charset, sign type, format and version
//   - Production, sandbox and override gateway endpoints
//   - Private key sources: inline, file, Vault KV and PKCS#12
//   - Transport, certificate cache, logging and tracing settings
//
// # Configuration Loading
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("alipay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Example
//
//	app_id: "2021000000000000"
//	sandbox: true
//	app_private_key_file: /etc/alipay/app_private_key.pem
//	app_public_cert_file: /etc/alipay/appCertPublicKey.crt
//	alipay_public_cert_file: /etc/alipay/alipayCertPublicKey_RSA2.crt
//	alipay_root_cert_file: /etc/alipay/alipayRootCert.crt
//	timeout: 10s
package config
