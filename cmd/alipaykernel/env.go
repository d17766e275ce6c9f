package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// Environment variables that override the loaded configuration.
const (
	envSandbox      = "ALIPAYKERNEL_SANDBOX"
	envGatewayURL   = "ALIPAYKERNEL_GATEWAY_URL"
	envAppAuthToken = "ALIPAYKERNEL_APP_AUTH_TOKEN"
	envTimeout      = "ALIPAYKERNEL_TIMEOUT"
)

// lookupEnv returns the trimmed value of key; unset and blank are the same.
func lookupEnv(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

// flagDefault returns the value of key, or def when it is not set.
func flagDefault(key, def string) string {
	if value, ok := lookupEnv(key); ok {
		return value
	}
	return def
}

// applyEnvOverrides lets a deployment switch gateways, act for a merchant
// or change the call timeout without editing the configuration file.
func applyEnvOverrides(cfg *config.Config) error {
	if value, ok := lookupEnv(envSandbox); ok {
		sandbox, err := strconv.ParseBool(value)
		if err != nil {
			return util.NewConfigErrorWithCause(envSandbox, "must be a boolean", err)
		}
		cfg.Sandbox = sandbox
	}
	if value, ok := lookupEnv(envGatewayURL); ok {
		if err := util.ValidateURL(value); err != nil {
			return util.NewConfigErrorWithCause(envGatewayURL, "must be an absolute URL", err)
		}
		cfg.GatewayURL = value
	}
	if value, ok := lookupEnv(envAppAuthToken); ok {
		cfg.AppAuthToken = value
	}
	if value, ok := lookupEnv(envTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			return util.NewConfigError(envTimeout, "must be a positive duration such as 15s")
		}
		cfg.Timeout = config.Duration(timeout)
	}
	return nil
}
