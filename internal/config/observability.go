package config

import (
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	Insecure     bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty" json:"service_name,omitempty"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" json:"level,omitempty"`
	Format     string `yaml:"format,omitempty" json:"format,omitempty"`
	Output     string `yaml:"output,omitempty" json:"output,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty" json:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty" json:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty" json:"compress,omitempty"`
}

// LogConfig converts to the logger configuration. A nil receiver yields defaults.
func (l *LoggingConfig) LogConfig() observability.LogConfig {
	out := observability.DefaultLogConfig()
	if l == nil {
		return out
	}
	if l.Level != "" {
		out.Level = l.Level
	}
	if l.Format != "" {
		out.Format = l.Format
	}
	if l.Output != "" {
		out.Output = l.Output
	}
	if l.MaxSizeMB > 0 {
		out.MaxSizeMB = l.MaxSizeMB
	}
	if l.MaxBackups > 0 {
		out.MaxBackups = l.MaxBackups
	}
	if l.MaxAgeDays > 0 {
		out.MaxAgeDays = l.MaxAgeDays
	}
	out.Compress = l.Compress
	return out
}

// TracerConfig converts to the tracer configuration. A nil receiver
// yields a disabled tracer.
func (t *TracingConfig) TracerConfig() observability.TracerConfig {
	if t == nil {
		return observability.TracerConfig{ServiceName: observability.DefaultNamespace}
	}
	name := t.ServiceName
	if name == "" {
		name = observability.DefaultNamespace
	}
	return observability.TracerConfig{
		ServiceName:  name,
		OTLPEndpoint: t.OTLPEndpoint,
		Insecure:     t.Insecure,
		SamplingRate: t.SamplingRate,
		Enabled:      t.Enabled,
	}
}
