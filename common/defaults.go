package common

import (
	"fmt"
	"strings"

	"github.com/erpc/solbridge/util"
)

const (
	DefaultHttpHost           = "0.0.0.0"
	DefaultHttpPort           = 3000
	DefaultUpstreamEndpoint   = "http://localhost:8545"
	DefaultFromAddress        = "0x5409ed021d9299bf6814279a6a1411a7e866a631"
	DefaultCoverageReportPath = "coverage/coverage.json"
	DefaultMetricsPort        = 4001
	DefaultTracingEndpoint    = "localhost:4318"
	DefaultServiceName        = "solbridge"
)

var DefaultTraceMethods = []string{
	"eth_call",
	"eth_sendRawTransaction",
}

func (c *Config) SetDefaults() error {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if err := c.Server.SetDefaults(); err != nil {
		return fmt.Errorf("failed to set defaults for server: %w", err)
	}
	if c.Upstream == nil {
		c.Upstream = &UpstreamConfig{}
	}
	if err := c.Upstream.SetDefaults(); err != nil {
		return fmt.Errorf("failed to set defaults for upstream: %w", err)
	}
	if c.Coverage == nil {
		c.Coverage = &CoverageConfig{}
	}
	if err := c.Coverage.SetDefaults(); err != nil {
		return fmt.Errorf("failed to set defaults for coverage: %w", err)
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	if err := c.Metrics.SetDefaults(); err != nil {
		return fmt.Errorf("failed to set defaults for metrics: %w", err)
	}
	if c.Tracing == nil {
		c.Tracing = &TracingConfig{}
	}
	return c.Tracing.SetDefaults()
}

func (s *ServerConfig) SetDefaults() error {
	if s.HttpHost == "" {
		s.HttpHost = DefaultHttpHost
	}
	if s.HttpPort == 0 {
		s.HttpPort = DefaultHttpPort
	}
	if s.HttpPort < 0 || s.HttpPort > 65535 {
		return NewErrInvalidConfig(fmt.Sprintf("server.httpPort must be between 0 and 65535, got %d", s.HttpPort))
	}
	return nil
}

func (u *UpstreamConfig) SetDefaults() error {
	if u.Endpoint == "" {
		u.Endpoint = DefaultUpstreamEndpoint
	}
	if !strings.HasPrefix(u.Endpoint, "http://") && !strings.HasPrefix(u.Endpoint, "https://") {
		return NewErrInvalidConfig(fmt.Sprintf("upstream.endpoint must be an http(s) url, got %q", u.Endpoint))
	}
	return nil
}

func (c *CoverageConfig) SetDefaults() error {
	if c.Enabled == nil {
		c.Enabled = util.BoolPtr(true)
	}
	if c.DefaultFromAddress == "" {
		c.DefaultFromAddress = DefaultFromAddress
	}
	if c.ReportPath == "" {
		c.ReportPath = DefaultCoverageReportPath
	}
	if len(c.TraceMethods) == 0 {
		c.TraceMethods = append([]string{}, DefaultTraceMethods...)
	}
	return nil
}

func (m *MetricsConfig) SetDefaults() error {
	if m.Host == "" {
		m.Host = DefaultHttpHost
	}
	if m.Port == 0 {
		m.Port = DefaultMetricsPort
	}
	return nil
}

func (t *TracingConfig) SetDefaults() error {
	if t.Endpoint == "" {
		t.Endpoint = DefaultTracingEndpoint
	}
	if t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}
	if t.SampleRate == 0 {
		t.SampleRate = 1.0
	}
	return nil
}
