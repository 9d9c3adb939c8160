package common

import (
	"os"

	"github.com/erpc/solbridge/util"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of the bridge process.
type Config struct {
	LogLevel string          `yaml:"logLevel" json:"logLevel"`
	Server   *ServerConfig   `yaml:"server" json:"server"`
	Upstream *UpstreamConfig `yaml:"upstream" json:"upstream"`
	Coverage *CoverageConfig `yaml:"coverage" json:"coverage"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing  *TracingConfig  `yaml:"tracing" json:"tracing"`
}

type ServerConfig struct {
	HttpHost string `yaml:"httpHost" json:"httpHost"`
	HttpPort int    `yaml:"httpPort" json:"httpPort"`
}

// UpstreamConfig describes the node the last delegate of the provider chain
// forwards to.
type UpstreamConfig struct {
	Endpoint string          `yaml:"endpoint" json:"endpoint"`
	Failsafe *FailsafeConfig `yaml:"failsafe" json:"failsafe"`
}

type FailsafeConfig struct {
	Retry   *RetryPolicyConfig   `yaml:"retry" json:"retry"`
	Timeout *TimeoutPolicyConfig `yaml:"timeout" json:"timeout"`
}

type RetryPolicyConfig struct {
	MaxAttempts     int      `yaml:"maxAttempts" json:"maxAttempts"`
	Delay           Duration `yaml:"delay" json:"delay"`
	BackoffMaxDelay Duration `yaml:"backoffMaxDelay" json:"backoffMaxDelay"`
	BackoffFactor   float32  `yaml:"backoffFactor" json:"backoffFactor"`
	Jitter          Duration `yaml:"jitter" json:"jitter"`
}

type TimeoutPolicyConfig struct {
	Duration Duration `yaml:"duration" json:"duration"`
}

type CoverageConfig struct {
	Enabled            *bool    `yaml:"enabled" json:"enabled"`
	ArtifactsDir       string   `yaml:"artifactsDir" json:"artifactsDir"`
	ContractsDir       string   `yaml:"contractsDir" json:"contractsDir"`
	DefaultFromAddress string   `yaml:"defaultFromAddress" json:"defaultFromAddress"`
	ReportPath         string   `yaml:"reportPath" json:"reportPath"`
	TraceMethods       []string `yaml:"traceMethods" json:"traceMethods"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	ServiceName string  `yaml:"serviceName" json:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate" json:"sampleRate"`
}

// LoadConfig reads the YAML file at filename, expands environment variables
// and applies defaults.
func LoadConfig(fs afero.Fs, filename string) (*Config, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewDefaultConfig is used when no config file is given.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	// SetDefaults cannot fail on an empty config.
	_ = cfg.SetDefaults()
	return cfg
}

func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("logLevel", c.LogLevel)
	if c.Server != nil {
		e.Str("httpHost", c.Server.HttpHost).Int("httpPort", c.Server.HttpPort)
	}
	if c.Upstream != nil {
		e.Str("upstream", util.RedactEndpoint(c.Upstream.Endpoint))
	}
	if c.Coverage != nil {
		e.Bool("coverage", c.Coverage.IsEnabled()).
			Str("artifactsDir", c.Coverage.ArtifactsDir).
			Str("contractsDir", c.Coverage.ContractsDir)
	}
}

func (c *CoverageConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}
