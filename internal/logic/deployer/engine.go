package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/jobadapter/internal/infra/metrics"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/naming"
)

const jobTemplateName = "job"

var ErrInvalidRequest = errors.New("invalid deploy request")

// Settings are the platform-wide values the engine deploys jobs with.
// An empty TelemetryEndpoint is not passed to jobs and a zero MemoryCeiling
// disables the ceiling check.
type Settings struct {
	InfrastructureTarget string
	PubURL               string
	TracingHeader        string
	TelemetryEndpoint    string
	DefaultLimits        job.ResourceLimits
	MemoryCeiling        resource.Quantity
	ServiceMonitor       bool
}

// DeployRequest describes one deployment of a job version.
type DeployRequest struct {
	Manifest       job.Manifest
	Tag            string
	RuntimeEnv     map[string]string
	Family         string
	ContainerCount int
}

// TemplateLabels are the label keys the job template sets.
type TemplateLabels struct {
	Resource string
	Name     string
	Version  string
}

// TemplateResources are the rendered quantities of ResourceLimits.
type TemplateResources struct {
	MemoryMin string
	MemoryMax string
	CPUMin    string
	CPUMax    string
}

// TemplateVars are the variables the job template is rendered with.
type TemplateVars struct {
	ResourceName        string
	Namespace           string
	Manifest            job.Manifest
	DeploymentTimestamp string
	Env                 map[string]string
	Resources           TemplateResources
	Containers          []job.ContainerSpec
	Replicas            int
	Labels              TemplateLabels
	ServiceMonitor      bool
}

// Engine deploys and deletes jobs on one infrastructure target.
type Engine struct {
	logger   *slog.Logger
	channel  job.Channel
	renderer renderer
	tokens   FamilyTokens
	images   ImageResolver
	hooks    []EnvHook
	settings Settings
	now      func() time.Time
}

// New creates a deployment engine. Hooks are invoked in the given order.
func New(
	logger *slog.Logger,
	channel job.Channel,
	renderer renderer,
	tokens FamilyTokens,
	images ImageResolver,
	hooks []EnvHook,
	settings Settings,
) *Engine {
	return &Engine{
		logger:   logger.With("component", "deployer", "target", settings.InfrastructureTarget),
		channel:  channel,
		renderer: renderer,
		tokens:   tokens,
		images:   images,
		hooks:    hooks,
		settings: settings,
		now:      time.Now,
	}
}

// Deploy renders and applies the deployment and service of a job version.
// Re-deploying the same version updates the objects in place.
func (e *Engine) Deploy(ctx context.Context, req DeployRequest) (job.Record, error) {
	rec, err := e.deploy(ctx, req)
	if err != nil {
		metrics.RecordDeployment(e.settings.InfrastructureTarget, metrics.ResultFailure)

		return job.Record{}, err
	}

	metrics.RecordDeployment(e.settings.InfrastructureTarget, metrics.ResultSuccess)

	return rec, nil
}

func (e *Engine) deploy(ctx context.Context, req DeployRequest) (job.Record, error) {
	manifest := req.Manifest
	if manifest.Name == "" || manifest.Version == "" {
		return job.Record{}, fmt.Errorf("%w: job name and version are required", ErrInvalidRequest)
	}

	if err := ValidateLabels(manifest.Labels); err != nil {
		return job.Record{}, err
	}

	containerCount := max(req.ContainerCount, 1)
	resourceName := naming.ResourceName(manifest.Name, manifest.Version)
	deployedAt := e.now().UTC().Truncate(time.Second)
	logger := e.logger.With("job", manifest.Identity().String(), "resource", resourceName)

	authToken, err := e.tokens.TokenForFamily(ctx, req.Family)
	if err != nil {
		return job.Record{}, fmt.Errorf("get family auth token: %w", err)
	}

	reserved, err := e.reservedEnv(ctx, manifest, authToken, deployedAt.Unix())
	if err != nil {
		return job.Record{}, err
	}

	env, err := mergeRuntimeEnv(req.RuntimeEnv, reserved)
	if err != nil {
		return job.Record{}, fmt.Errorf("merge runtime env: %w", err)
	}

	limits, err := ComputeLimits(manifest.Resources, e.settings.DefaultLimits, e.settings.MemoryCeiling)
	if err != nil {
		return job.Record{}, fmt.Errorf("compute resource limits: %w", err)
	}

	containers, err := e.containers(manifest.Name, resourceName, req.Tag, containerCount)
	if err != nil {
		return job.Record{}, err
	}

	vars := TemplateVars{
		ResourceName:        resourceName,
		Namespace:           e.channel.Namespace(),
		Manifest:            manifest,
		DeploymentTimestamp: strconv.FormatInt(deployedAt.Unix(), 10),
		Env:                 env,
		Resources: TemplateResources{
			MemoryMin: limits.MemoryMin.String(),
			MemoryMax: limits.MemoryMax.String(),
			CPUMin:    limits.CPUMin.String(),
			CPUMax:    limits.CPUMax.String(),
		},
		Containers: containers,
		Replicas:   max(manifest.Replicas, 1),
		Labels: TemplateLabels{
			Resource: job.ResourceLabel,
			Name:     job.NameLabel,
			Version:  job.VersionLabel,
		},
		ServiceMonitor: e.settings.ServiceMonitor,
	}

	document, err := e.renderer.Render(jobTemplateName, vars)
	if err != nil {
		return job.Record{}, fmt.Errorf("render job resources: %w", err)
	}

	if err := e.channel.Apply(ctx, document); err != nil {
		return job.Record{}, fmt.Errorf("apply job resources: %w", err)
	}

	logger.InfoContext(ctx, "job deployed",
		"containers", containerCount,
		"memoryMin", vars.Resources.MemoryMin,
		"memoryMax", vars.Resources.MemoryMax,
		"cpuMin", vars.Resources.CPUMin,
		"cpuMax", vars.Resources.CPUMax,
	)

	return job.Record{
		Identity:             manifest.Identity(),
		Status:               job.StatusRunning,
		CreateTime:           deployedAt,
		UpdateTime:           deployedAt,
		InternalAddress:      naming.InternalAddress(resourceName, e.channel.Namespace()),
		ImageTag:             req.Tag,
		InfrastructureTarget: e.settings.InfrastructureTarget,
	}, nil
}

func (e *Engine) containers(jobName, resourceName, tag string, count int) ([]job.ContainerSpec, error) {
	containers := make([]job.ContainerSpec, 0, count)

	for i := range count {
		image, err := e.images.ImageReference(jobName, tag, i)
		if err != nil {
			return nil, fmt.Errorf("resolve image of container %d: %w", i, err)
		}

		containers = append(containers, job.ContainerSpec{
			Name:  naming.ContainerName(resourceName, i),
			Image: image,
			Port:  naming.ContainerPort(i),
		})
	}

	return containers, nil
}

// Delete removes the deployment and service of a job version, then its secret and
// service monitor when present. Missing optional objects are only logged.
func (e *Engine) Delete(ctx context.Context, id job.Identity) error {
	resourceName := naming.ResourceName(id.Name, id.Version)
	logger := e.logger.With("job", id.String(), "resource", resourceName)

	for _, kind := range []job.Kind{job.KindDeployment, job.KindService} {
		if err := e.channel.Delete(ctx, kind, resourceName); err != nil {
			metrics.RecordDeletion(e.settings.InfrastructureTarget, metrics.ResultFailure)

			return fmt.Errorf("delete %s: %w", kind, err)
		}

		logger.InfoContext(ctx, "deleted job object", "kind", kind)
	}

	for _, kind := range []job.Kind{job.KindSecret, job.KindServiceMonitor} {
		if err := e.deleteOptional(ctx, logger, kind, resourceName); err != nil {
			metrics.RecordDeletion(e.settings.InfrastructureTarget, metrics.ResultFailure)

			return err
		}
	}

	metrics.RecordDeletion(e.settings.InfrastructureTarget, metrics.ResultSuccess)

	return nil
}

func (e *Engine) deleteOptional(ctx context.Context, logger *slog.Logger, kind job.Kind, name string) error {
	exists, err := e.channel.Exists(ctx, kind, name)
	if err != nil {
		return fmt.Errorf("check %s: %w", kind, err)
	}

	if !exists {
		logger.WarnContext(ctx, "job object was not found", "kind", kind)

		return nil
	}

	if err := e.channel.Delete(ctx, kind, name); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	logger.InfoContext(ctx, "deleted job object", "kind", kind)

	return nil
}

// Exists reports whether the deployment of a job version is present.
func (e *Engine) Exists(ctx context.Context, id job.Identity) (bool, error) {
	exists, err := e.channel.Exists(ctx, job.KindDeployment, naming.ResourceName(id.Name, id.Version))
	if err != nil {
		return false, fmt.Errorf("check deployment: %w", err)
	}

	return exists, nil
}
