package monitor

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/skillcoder/jobadapter/internal/infra/metrics"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/naming"
)

const (
	// DefaultLogTail is the number of log lines attached to a failed condition check.
	DefaultLogTail = 20

	gatewayTokenHeader        = "X-Gateway-Token"
	gatewayTargetHeader       = "X-Gateway-Target"
	gatewayInternalNameHeader = "X-Job-Internal-Name"
	gatewayForwardPath        = "/pub/remote/forward"

	defaultConditionInterval = 2 * time.Second
	defaultConditionTimeout  = 5 * time.Minute
)

// Settings configure how jobs of one infrastructure target are reached.
type Settings struct {
	InfrastructureTarget string
	// GatewayURL routes job calls through a remote gateway when non-empty.
	GatewayURL        string
	GatewayToken      string
	ConditionInterval time.Duration
	ConditionTimeout  time.Duration
}

// Monitor discovers jobs from cluster state and checks their condition.
type Monitor struct {
	logger   *slog.Logger
	channel  job.Channel
	prober   Prober
	settings Settings
}

// New creates a monitor.
func New(logger *slog.Logger, channel job.Channel, prober Prober, settings Settings) *Monitor {
	if settings.ConditionInterval <= 0 {
		settings.ConditionInterval = defaultConditionInterval
	}

	if settings.ConditionTimeout <= 0 {
		settings.ConditionTimeout = defaultConditionTimeout
	}

	settings.GatewayURL = strings.TrimRight(settings.GatewayURL, "/")

	return &Monitor{
		logger:   logger.With("component", "monitor", "target", settings.InfrastructureTarget),
		channel:  channel,
		prober:   prober,
		settings: settings,
	}
}

// ListJobs lists the jobs running on the target. Pods are listed once up front;
// records are built and probed lazily while iterating. A job failing its probe
// is yielded with an error status.
func (m *Monitor) ListJobs(ctx context.Context) (iter.Seq[job.Record], error) {
	pods, err := m.channel.ListPods(ctx, job.ResourceLabel)
	if err != nil {
		return nil, fmt.Errorf("list job pods: %w", err)
	}

	groups := groupPods(pods)

	return func(yield func(job.Record) bool) {
		for _, resourceName := range slices.Sorted(maps.Keys(groups)) {
			if ctx.Err() != nil {
				return
			}

			rec, ok := m.buildRecord(resourceName, groups[resourceName])
			if !ok {
				m.logger.DebugContext(ctx, "skipping pods without job labels", "resource", resourceName)

				continue
			}

			m.probe(ctx, &rec, groups[resourceName])

			if !yield(rec) {
				return
			}
		}
	}, nil
}

// groupPods groups pods by resource name, each group ordered by creation time.
func groupPods(pods []job.PodFact) map[string][]job.PodFact {
	groups := make(map[string][]job.PodFact)

	for _, pod := range pods {
		if pod.ResourceName == "" {
			continue
		}

		groups[pod.ResourceName] = append(groups[pod.ResourceName], pod)
	}

	for _, group := range groups {
		slices.SortStableFunc(group, func(a, b job.PodFact) int {
			return a.CreationTime.Compare(b.CreationTime)
		})
	}

	return groups
}

func (m *Monitor) buildRecord(resourceName string, pods []job.PodFact) (job.Record, bool) {
	if len(pods) == 0 {
		return job.Record{}, false
	}

	recent := pods[len(pods)-1]
	if recent.JobName == "" || recent.JobVersion == "" {
		return job.Record{}, false
	}

	namespace := m.channel.Namespace()

	replicas := make([]string, 0, len(pods))
	for _, pod := range pods {
		if pod.IP == "" {
			continue
		}

		replicas = append(replicas, naming.ReplicaAddress(pod.IP, resourceName, namespace))
	}

	slices.Sort(replicas)

	return job.Record{
		Identity:             job.Identity{Name: recent.JobName, Version: recent.JobVersion},
		Status:               job.StatusRunning,
		CreateTime:           recent.CreationTime,
		UpdateTime:           recent.CreationTime,
		InternalAddress:      naming.InternalAddress(resourceName, namespace),
		ReplicaAddresses:     replicas,
		InfrastructureTarget: m.settings.InfrastructureTarget,
	}, true
}

func (m *Monitor) probe(ctx context.Context, rec *job.Record, pods []job.PodFact) {
	if err := m.probeJob(ctx, rec); err != nil {
		rec.Status = job.StatusError
		rec.Error = err.Error()

		metrics.RecordProbeFailure(m.settings.InfrastructureTarget)
		m.logger.WarnContext(ctx, "job is in bad condition", "job", rec.Identity.String(), "reason", err)
	}

	reader, ok := m.channel.(job.UsageReader)
	if !ok {
		return
	}

	names := make([]string, 0, len(pods))
	for _, pod := range pods {
		names = append(names, pod.PodName)
	}

	usage, err := reader.PodMemoryUsage(ctx, names)
	if err != nil {
		m.logger.DebugContext(ctx, "memory usage unavailable", "job", rec.Identity.String(), "reason", err)

		return
	}

	rec.MemoryUsage = usage
}

func (m *Monitor) probeJob(ctx context.Context, rec *job.Record) error {
	url, header := m.RemoteJobAddress(*rec)

	health, err := m.prober.Health(ctx, url, header)
	if err != nil {
		return &job.MonitorError{Stage: "health", Err: err}
	}

	if !health.Operational {
		return &job.MonitorError{Stage: "health", Err: ErrNotOperational}
	}

	lastCall, err := m.prober.LastCallTime(ctx, url, header)
	if err != nil {
		return &job.MonitorError{Stage: "metrics", Err: err}
	}

	rec.LastCallTime = lastCall

	return nil
}

// CheckJobCondition waits until the job reports it is operational and runs a
// deployment at least as recent as deploymentTimestamp. onAlive, when set, is
// called every time the job answers. On failure the recent job logs are
// appended to the error if logsOnError is set.
func (m *Monitor) CheckJobCondition(
	ctx context.Context,
	rec job.Record,
	deploymentTimestamp int64,
	onAlive func(),
	logsOnError bool,
) error {
	err := m.waitOperational(ctx, rec, deploymentTimestamp, onAlive)
	if err == nil {
		return nil
	}

	if !logsOnError {
		return err
	}

	logs, logsErr := m.ReadRecentLogs(context.WithoutCancel(ctx), rec.Identity, DefaultLogTail)
	if logsErr != nil {
		m.logger.WarnContext(ctx, "failed to read logs of unhealthy job",
			"job", rec.Identity.String(),
			"reason", logsErr,
		)

		return err
	}

	return fmt.Errorf("%w\njob logs:\n%s", err, logs)
}

func (m *Monitor) waitOperational(
	ctx context.Context,
	rec job.Record,
	deploymentTimestamp int64,
	onAlive func(),
) error {
	ctx, cancel := context.WithTimeout(ctx, m.settings.ConditionTimeout)
	defer cancel()

	url, header := m.RemoteJobAddress(rec)

	ticker := time.NewTicker(m.settings.ConditionInterval)
	defer ticker.Stop()

	var lastErr error

	for {
		lastErr = m.checkOnce(ctx, url, header, deploymentTimestamp, onAlive)
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return &job.MonitorError{
				Stage: "condition",
				Err:   fmt.Errorf("%w after %s: %w", ErrConditionTimeout, m.settings.ConditionTimeout, lastErr),
			}
		case <-ticker.C:
		}
	}
}

func (m *Monitor) checkOnce(
	ctx context.Context,
	url string,
	header http.Header,
	deploymentTimestamp int64,
	onAlive func(),
) error {
	health, err := m.prober.Health(ctx, url, header)
	if err != nil {
		return err
	}

	if onAlive != nil {
		onAlive()
	}

	switch {
	case !health.Operational:
		return ErrNotOperational
	case health.DeploymentTimestamp < deploymentTimestamp:
		return fmt.Errorf("%w: running %d, expected at least %d",
			ErrStaleDeployment, health.DeploymentTimestamp, deploymentTimestamp)
	}

	return nil
}

// RemoteJobAddress returns the base URL of the job and the headers a call to it needs.
// Without a gateway the job is called directly on its internal address.
func (m *Monitor) RemoteJobAddress(rec job.Record) (string, http.Header) {
	if m.settings.GatewayURL == "" {
		return "http://" + rec.InternalAddress, http.Header{}
	}

	header := http.Header{}
	header.Set(gatewayTokenHeader, m.settings.GatewayToken)
	header.Set(gatewayTargetHeader, m.settings.InfrastructureTarget)
	header.Set(gatewayInternalNameHeader, rec.InternalAddress)

	return fmt.Sprintf("%s%s/%s/%s", m.settings.GatewayURL, gatewayForwardPath, rec.Name, rec.Version), header
}

// ReadRecentLogs returns the last tail lines of the main container of every job pod.
func (m *Monitor) ReadRecentLogs(ctx context.Context, id job.Identity, tail int) (string, error) {
	resourceName := naming.ResourceName(id.Name, id.Version)

	logs, err := m.channel.Logs(ctx, job.LogQuery{
		Selector:  job.ResourceLabel + "=" + resourceName,
		Container: resourceName,
		Tail:      tail,
	})
	if err != nil {
		return "", fmt.Errorf("read logs of %s: %w", id, err)
	}

	return logs, nil
}
