package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

const (
	// DefaultTargetName names the implicit target used without a config file.
	DefaultTargetName = "default"

	defaultNamespace     = "jobs"
	defaultTracingHeader = "X-Request-Tracing-Id"
)

type Config struct {
	ConfigFile           string
	KubeConfig           string
	KubeMaster           string
	LogLevel             string
	LogFormat            string
	HTTPPort             string
	MetricsPort          string
	TemplatesDir         string
	SurveySchedule       string
	PingerInterval       time.Duration
	LogPollInterval      time.Duration
	LogDiscoveryInterval time.Duration
	ConditionInterval    time.Duration
	ConditionTimeout     time.Duration

	Targets  map[string]Target
	Docker   Docker
	Platform Platform
}

// Target is one deployment environment. Kubectl targets with a remote
// gateway URL forward their commands; without one kubectl runs locally.
type Target struct {
	Name               string        `yaml:"-"`
	Transport          job.Transport `yaml:"transport"`
	Namespace          string        `yaml:"namespace"`
	KubeConfig         string        `yaml:"kubeconfig"`
	KubeMaster         string        `yaml:"kube_master"`
	RemoteGatewayURL   string        `yaml:"remote_gateway_url"`
	RemoteGatewayToken string        `yaml:"remote_gateway_token"`
	KubectlPath        string        `yaml:"kubectl_path"`
	Workdir            string        `yaml:"workdir"`
}

type Docker struct {
	Registry  string `yaml:"registry"`
	Namespace string `yaml:"namespace"`
}

type Limits struct {
	MemoryMin string `yaml:"memory_min"`
	MemoryMax string `yaml:"memory_max"`
	CPUMin    string `yaml:"cpu_min"`
	CPUMax    string `yaml:"cpu_max"`
}

type Platform struct {
	PubURL            string            `yaml:"pub_url"`
	TelemetryEndpoint string            `yaml:"telemetry_endpoint"`
	TracingHeader     string            `yaml:"tracing_header"`
	DefaultLimits     Limits            `yaml:"default_limits"`
	MemoryCeiling     string            `yaml:"memory_ceiling"`
	ServiceMonitor    bool              `yaml:"service_monitor"`
	FamilyTokens      map[string]string `yaml:"family_tokens"`
	JobEnv            map[string]string `yaml:"job_env"`
}

type file struct {
	Targets  map[string]Target `yaml:"infrastructure_targets"`
	Docker   Docker            `yaml:"docker"`
	Platform Platform          `yaml:"platform"`
}

func defaultPlatform() Platform {
	return Platform{
		TracingHeader: defaultTracingHeader,
		DefaultLimits: Limits{
			MemoryMin: "256Mi",
			MemoryMax: "1Gi",
			CPUMin:    "10m",
			CPUMax:    "1000m",
		},
		MemoryCeiling: "8Gi",
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		ConfigFile:     os.Getenv(envKeyConfigFile),
		KubeConfig:     getEnvWithFallback(envKeyKubeConfig, envKeyKubeConfigFallback),
		KubeMaster:     getEnvWithFallback(envKeyKubeMaster, envKeyKubeMasterFallback),
		LogLevel:       getEnvOrDefault(envKeyLogLevel, "info"),
		LogFormat:      getEnvOrDefault(envKeyLogFormat, "json"),
		HTTPPort:       getEnvOrDefault(envKeyHTTPPort, "8080"),
		MetricsPort:    getEnvOrDefault(envKeyMetricsPort, "9090"),
		TemplatesDir:   getEnvOrDefault(envKeyTemplatesDir, "/mnt/templates"),
		SurveySchedule: getEnvOrDefault(envKeySurveySchedule, "* * * * *"),
		Platform:       defaultPlatform(),
	}

	durations := []struct {
		key    string
		def    string
		minVal time.Duration
		dst    *time.Duration
	}{
		{envKeyPingerInterval, "10s", envMinPingerInterval, &cfg.PingerInterval},
		{envKeyLogPollInterval, "3s", envMinLogPollInterval, &cfg.LogPollInterval},
		{envKeyLogDiscoveryInterval, "10s", envMinLogDiscoveryInterval, &cfg.LogDiscoveryInterval},
		{envKeyConditionInterval, "2s", envMinConditionInterval, &cfg.ConditionInterval},
		{envKeyConditionTimeout, "5m", envMinConditionTimeout, &cfg.ConditionTimeout},
	}

	for _, d := range durations {
		value, err := parseDuration(d.key, getEnvOrDefault(d.key, d.def), d.minVal)
		if err != nil {
			return nil, err
		}

		*d.dst = value
	}

	if err := cfg.loadFile(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile() error {
	if c.ConfigFile == "" {
		c.Targets = map[string]Target{
			DefaultTargetName: {
				Transport: job.TransportDirect,
				Namespace: getEnvOrDefault(envKeyNamespace, defaultNamespace),
			},
		}

		return nil
	}

	content, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	parsed := file{Platform: c.Platform}
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", c.ConfigFile, err)
	}

	c.Targets = parsed.Targets
	c.Docker = parsed.Docker
	c.Platform = parsed.Platform

	return nil
}

func (c *Config) validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}

	for name, target := range c.Targets {
		target.Name = name

		if target.Namespace == "" {
			target.Namespace = defaultNamespace
		}

		switch target.Transport {
		case job.TransportDirect:
			if target.KubeConfig == "" {
				target.KubeConfig = c.KubeConfig
			}

			if target.KubeMaster == "" {
				target.KubeMaster = c.KubeMaster
			}

			if target.RemoteGatewayURL != "" {
				return fmt.Errorf("%w: %s: remote gateway requires the kubectl transport", ErrInvalidTarget, name)
			}
		case job.TransportKubectl:
		default:
			return fmt.Errorf("%w: %s: unknown transport %q", ErrInvalidTarget, name, target.Transport)
		}

		c.Targets[name] = target
	}

	if c.Platform.TracingHeader == "" {
		c.Platform.TracingHeader = defaultTracingHeader
	}

	if _, err := c.Platform.ResourceLimits(); err != nil {
		return err
	}

	if _, err := c.Platform.MemoryCeilingQuantity(); err != nil {
		return err
	}

	return nil
}

// TargetNames returns the configured target names in lexical order.
func (c *Config) TargetNames() []string {
	return slices.Sorted(maps.Keys(c.Targets))
}

// ResourceLimits parses the default job limits.
func (p Platform) ResourceLimits() (job.ResourceLimits, error) {
	var limits job.ResourceLimits

	fields := []struct {
		name  string
		value string
		dst   *resource.Quantity
	}{
		{"memory_min", p.DefaultLimits.MemoryMin, &limits.MemoryMin},
		{"memory_max", p.DefaultLimits.MemoryMax, &limits.MemoryMax},
		{"cpu_min", p.DefaultLimits.CPUMin, &limits.CPUMin},
		{"cpu_max", p.DefaultLimits.CPUMax, &limits.CPUMax},
	}

	for _, f := range fields {
		q, err := resource.ParseQuantity(f.value)
		if err != nil {
			return job.ResourceLimits{}, fmt.Errorf("%w: default %s %q: %w", ErrInvalidQuantity, f.name, f.value, err)
		}

		*f.dst = q
	}

	return limits, nil
}

// MemoryCeilingQuantity parses the memory ceiling; an empty value disables it.
func (p Platform) MemoryCeilingQuantity() (resource.Quantity, error) {
	if p.MemoryCeiling == "" {
		return resource.Quantity{}, nil
	}

	q, err := resource.ParseQuantity(p.MemoryCeiling)
	if err != nil {
		return resource.Quantity{}, fmt.Errorf("%w: memory_ceiling %q: %w", ErrInvalidQuantity, p.MemoryCeiling, err)
	}

	return q, nil
}

func parseDuration(key, value string, minVal time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidDuration, key, value, err)
	}

	if d < minVal {
		return 0, fmt.Errorf("%w: %s=%s, minimum %s", ErrDurationTooLow, key, d, minVal)
	}

	return d, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

func getEnvWithFallback(key, fallbackKey string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return os.Getenv(fallbackKey)
}
