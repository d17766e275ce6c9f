package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, "utf-8", cfg.Charset)
	assert.Equal(t, "RSA2", cfg.SignType)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "Asia/Shanghai", cfg.Location)
	assert.Equal(t, DefaultTimeout, cfg.Timeout.Duration())
}

func TestConfig_ApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{Charset: "gbk", SignType: "RSA", Timeout: Duration(3 * time.Second)}
	cfg.ApplyDefaults()

	assert.Equal(t, "gbk", cfg.Charset)
	assert.Equal(t, "RSA", cfg.SignType)
	assert.Equal(t, 3*time.Second, cfg.Timeout.Duration())
}

func TestConfig_Endpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{name: "production", cfg: Config{}, expected: ProductionGatewayURL},
		{name: "sandbox", cfg: Config{Sandbox: true}, expected: SandboxGatewayURL},
		{
			name:     "override wins over sandbox",
			cfg:      Config{Sandbox: true, GatewayURL: "http://127.0.0.1:9000/gateway.do"},
			expected: "http://127.0.0.1:9000/gateway.do",
		},
		{name: "blank override ignored", cfg: Config{GatewayURL: "  "}, expected: ProductionGatewayURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.cfg.Endpoint())
		})
	}
}

func TestConfig_CertMode(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Config{}).CertMode())
	assert.False(t, (&Config{AppPublicCertFile: "app.crt"}).CertMode())
	assert.False(t, (&Config{AlipayRootCertFile: "root.crt"}).CertMode())
	assert.True(t, (&Config{AppPublicCertFile: "app.crt", AlipayRootCertFile: "root.crt"}).CertMode())
}

func TestConfig_TimeLocation(t *testing.T) {
	t.Parallel()

	loc, err := (&Config{}).TimeLocation()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())

	loc, err = (&Config{Location: "UTC"}).TimeLocation()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = (&Config{Location: "Nowhere/Atlantis"}).TimeLocation()
	assert.Error(t, err)
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var out struct {
		Timeout Duration `yaml:"timeout"`
		Empty   Duration `yaml:"empty"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 1m30s\nempty: \"\"\n"), &out))
	assert.Equal(t, 90*time.Second, out.Timeout.Duration())
	assert.Zero(t, out.Empty)

	data, err := yaml.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 1m30s")

	err = yaml.Unmarshal([]byte("timeout: soon\n"), &out)
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Zero(t, d)

	data, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(data))
}

func TestDuration_OrDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, Duration(0).OrDefault(5*time.Second))
	assert.Equal(t, 5*time.Second, Duration(-1).OrDefault(5*time.Second))
	assert.Equal(t, time.Second, Duration(time.Second).OrDefault(5*time.Second))
}

func TestLoggingConfig_LogConfig(t *testing.T) {
	t.Parallel()

	var nilCfg *LoggingConfig
	def := nilCfg.LogConfig()
	assert.Equal(t, "info", def.Level)
	assert.Equal(t, "stdout", def.Output)

	out := (&LoggingConfig{Level: "debug", Output: "/var/log/kernel.log", MaxBackups: 2, Compress: true}).LogConfig()
	assert.Equal(t, "debug", out.Level)
	assert.Equal(t, "json", out.Format)
	assert.Equal(t, "/var/log/kernel.log", out.Output)
	assert.Equal(t, 2, out.MaxBackups)
	assert.Equal(t, def.MaxSizeMB, out.MaxSizeMB)
	assert.True(t, out.Compress)
}

func TestTracingConfig_TracerConfig(t *testing.T) {
	t.Parallel()

	var nilCfg *TracingConfig
	assert.False(t, nilCfg.TracerConfig().Enabled)
	assert.Equal(t, "alipaykernel", nilCfg.TracerConfig().ServiceName)

	tc := (&TracingConfig{Enabled: true, SamplingRate: 0.5, OTLPEndpoint: "localhost:4317", Insecure: true}).TracerConfig()
	assert.True(t, tc.Enabled)
	assert.Equal(t, 0.5, tc.SamplingRate)
	assert.Equal(t, "localhost:4317", tc.OTLPEndpoint)
	assert.True(t, tc.Insecure)
	assert.Equal(t, "alipaykernel", tc.ServiceName)
}
