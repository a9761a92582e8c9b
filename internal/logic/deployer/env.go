package deployer

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// Reserved env var names injected into every job container.
const (
	EnvPubURL              = "PUB_URL"
	EnvJobName             = "JOB_NAME"
	EnvAuthToken           = "AUTH_TOKEN"
	EnvDeploymentTimestamp = "JOB_DEPLOYMENT_TIMESTAMP"
	EnvTracingHeader       = "REQUEST_TRACING_HEADER"
	EnvUserModuleHostname  = "JOB_USER_MODULE_HOSTNAME"
	EnvTelemetryEndpoint   = "OPENTELEMETRY_ENDPOINT"

	userModuleHostname = "localhost"
)

// reservedEnv builds the env vars owned by the platform, including hook contributions
// merged in registration order with the last hook winning.
func (e *Engine) reservedEnv(
	ctx context.Context,
	manifest job.Manifest,
	authToken string,
	deploymentTimestamp int64,
) (map[string]string, error) {
	env := map[string]string{
		EnvPubURL:              e.settings.PubURL,
		EnvJobName:             manifest.Name,
		EnvAuthToken:           authToken,
		EnvDeploymentTimestamp: strconv.FormatInt(deploymentTimestamp, 10),
		EnvTracingHeader:       e.settings.TracingHeader,
		EnvUserModuleHostname:  userModuleHostname,
	}

	if e.settings.TelemetryEndpoint != "" {
		env[EnvTelemetryEndpoint] = e.settings.TelemetryEndpoint
	}

	for _, hook := range e.hooks {
		contributed, err := hook.JobRuntimeEnv(ctx, manifest)
		if err != nil {
			return nil, fmt.Errorf("env hook %s: %w", hook.Name(), err)
		}

		maps.Copy(env, contributed)
	}

	return env, nil
}

// mergeRuntimeEnv overlays reserved vars on the caller's runtime vars and fails
// when the caller tries to set any reserved name.
func mergeRuntimeEnv(runtime, reserved map[string]string) (map[string]string, error) {
	var conflicts []string

	for key := range runtime {
		if _, ok := reserved[key]; ok {
			conflicts = append(conflicts, key)
		}
	}

	if len(conflicts) > 0 {
		slices.Sort(conflicts)

		return nil, &job.ConfigurationError{Err: job.ErrReservedEnv, Keys: conflicts}
	}

	merged := make(map[string]string, len(runtime)+len(reserved))
	maps.Copy(merged, runtime)
	maps.Copy(merged, reserved)

	return merged, nil
}
