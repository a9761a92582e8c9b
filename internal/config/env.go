package config

import "time"

// Env key constants. All adapter configuration env vars use the JOBADAPTER_ prefix;
// duration values support explicit units (e.g. 5m, 40s, 2h).

// Path to the YAML file describing infrastructure targets, docker registry and platform settings.
const envKeyConfigFile = "JOBADAPTER_CONFIG_FILE"

// Path to kubeconfig file used by direct targets without their own. If unset, KUBECONFIG is used as fallback.
const envKeyKubeConfig = "JOBADAPTER_KUBECONFIG"

// Kubernetes API server URL used by direct targets without their own. If unset, KUBERNETES_MASTER is used.
const envKeyKubeMaster = "JOBADAPTER_KUBE_MASTER"

// Namespace of the implicit target used when no config file is given.
const envKeyNamespace = "JOBADAPTER_NAMESPACE"

// Log level: debug, info, warn, error.
const envKeyLogLevel = "JOBADAPTER_LOG_LEVEL"

// Log format: json or text.
const envKeyLogFormat = "JOBADAPTER_LOG_FORMAT"

// Port for health, readiness and jobs API HTTP server.
const envKeyHTTPPort = "JOBADAPTER_HTTP_PORT"

// Port for Prometheus metrics (GET /metrics).
const envKeyMetricsPort = "JOBADAPTER_METRICS_PORT"

// Directory with override templates (<name>.yaml) taking precedence over the bundled ones.
const envKeyTemplatesDir = "JOBADAPTER_TEMPLATES_DIR"

// Cron expression of the periodic job survey refreshing the job gauges.
const envKeySurveySchedule = "JOBADAPTER_SURVEY_SCHEDULE"

// Target pinger check interval. Units: s, m, h (e.g. 10s, 1m).
const (
	envKeyPingerInterval = "JOBADAPTER_PINGER_INTERVAL"
	envMinPingerInterval = time.Second
)

// Interval between log fetches of polled log sessions. Units: s, m, h (e.g. 3s).
const (
	envKeyLogPollInterval = "JOBADAPTER_LOG_POLL_INTERVAL"
	envMinLogPollInterval = 500 * time.Millisecond
)

// Interval between pod rediscoveries of watched log sessions. Units: s, m, h (e.g. 10s).
const (
	envKeyLogDiscoveryInterval = "JOBADAPTER_LOG_DISCOVERY_INTERVAL"
	envMinLogDiscoveryInterval = time.Second
)

// Interval between health probes while waiting for a deployed job. Units: s, m, h (e.g. 2s).
const (
	envKeyConditionInterval = "JOBADAPTER_CONDITION_INTERVAL"
	envMinConditionInterval = 100 * time.Millisecond
)

// Maximum time to wait for a deployed job to become operational. Units: s, m, h (e.g. 5m).
const (
	envKeyConditionTimeout = "JOBADAPTER_CONDITION_TIMEOUT"
	envMinConditionTimeout = time.Second
)

// Standard k8s env keys used as fallback when JOBADAPTER_* are unset.
const (
	envKeyKubeConfigFallback = "KUBECONFIG"
	envKeyKubeMasterFallback = "KUBERNETES_MASTER"
)
