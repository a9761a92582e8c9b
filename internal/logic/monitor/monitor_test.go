package monitor_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/job/jobtest"
	"github.com/skillcoder/jobadapter/internal/logic/monitor"
	"github.com/skillcoder/jobadapter/internal/logic/monitor/mocks"
	"github.com/skillcoder/jobadapter/internal/logic/naming"
)

const testNamespace = "jobs"

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pod(name, resourceName, jobName, version, ip string, age time.Duration) job.PodFact {
	return job.PodFact{
		PodName:      name,
		ResourceName: resourceName,
		JobName:      jobName,
		JobVersion:   version,
		CreationTime: baseTime.Add(age),
		Phase:        "Running",
		IP:           ip,
	}
}

func newMonitor(channel job.Channel, prober monitor.Prober, settings monitor.Settings) *monitor.Monitor {
	settings.InfrastructureTarget = "local"

	return monitor.New(slog.Default(), channel, prober, settings)
}

func healthy(prober *mocks.MockProber) {
	prober.EXPECT().
		Health(mock.Anything, mock.Anything, mock.Anything).
		Return(job.Health{Operational: true}, nil)
	prober.EXPECT().
		LastCallTime(mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)
}

func collect(t *testing.T, m *monitor.Monitor) []job.Record {
	t.Helper()

	records, err := m.ListJobs(t.Context())
	require.NoError(t, err)

	return slices.Collect(records)
}

func TestMonitor_ListJobs_RepresentativePod(t *testing.T) {
	t.Parallel()

	resourceName := naming.ResourceName("sentiment", "2")
	channel := jobtest.NewChannel(testNamespace, job.TransportDirect)
	channel.Pods = []job.PodFact{
		pod("p3", resourceName, "sentiment", "2", "10.0.0.3", 3*time.Minute),
		pod("p1", resourceName, "sentiment", "1", "10.0.0.12", time.Minute),
		pod("p2", resourceName, "sentiment", "1", "10.0.0.2", 2*time.Minute),
	}

	prober := mocks.NewMockProber(t)
	healthy(prober)

	records := collect(t, newMonitor(channel, prober, monitor.Settings{}))
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, job.Identity{Name: "sentiment", Version: "2"}, rec.Identity)
	require.Equal(t, baseTime.Add(3*time.Minute), rec.CreateTime)
	require.Equal(t, job.StatusRunning, rec.Status)
	require.Equal(t, naming.InternalAddress(resourceName, testNamespace), rec.InternalAddress)
	require.Equal(t, []string{
		"10-0-0-12." + resourceName + ".jobs.svc:7000",
		"10-0-0-2." + resourceName + ".jobs.svc:7000",
		"10-0-0-3." + resourceName + ".jobs.svc:7000",
	}, rec.ReplicaAddresses)
	require.Equal(t, "local", rec.InfrastructureTarget)
	require.Contains(t, channel.Calls(), "list pods "+job.ResourceLabel)
}

func TestMonitor_ListJobs_PodWithoutIP(t *testing.T) {
	t.Parallel()

	resourceName := naming.ResourceName("sentiment", "1")
	channel := jobtest.NewChannel(testNamespace, job.TransportDirect)
	channel.Pods = []job.PodFact{
		pod("p1", resourceName, "sentiment", "1", "10.0.0.1", 0),
		pod("p2", resourceName, "sentiment", "1", "", time.Minute),
	}

	prober := mocks.NewMockProber(t)
	healthy(prober)

	records := collect(t, newMonitor(channel, prober, monitor.Settings{}))
	require.Len(t, records, 1)
	require.Equal(t, []string{"10-0-0-1." + resourceName + ".jobs.svc:7000"}, records[0].ReplicaAddresses)
}

type skipCase struct {
	name        string
	giveJobName string
	giveVersion string
}

func TestMonitor_ListJobs_SkipsUnlabelledGroups(t *testing.T) {
	t.Parallel()

	tests := []skipCase{
		{name: "no labels"},
		{name: "missing version", giveJobName: "sentiment"},
		{name: "missing name", giveVersion: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			channel := jobtest.NewChannel(testNamespace, job.TransportDirect)
			channel.Pods = []job.PodFact{
				pod("foreign", "job-foreign", tt.giveJobName, tt.giveVersion, "10.0.0.1", 0),
			}

			records := collect(t, newMonitor(channel, mocks.NewMockProber(t), monitor.Settings{}))
			require.Empty(t, records)
		})
	}
}

func TestMonitor_ListJobs_ProbeFailureDegradesRecord(t *testing.T) {
	t.Parallel()

	broken := naming.ResourceName("broken", "1")
	fine := naming.ResourceName("fine", "1")

	channel := jobtest.NewChannel(testNamespace, job.TransportDirect)
	channel.Pods = []job.PodFact{
		pod("a", broken, "broken", "1", "10.0.0.1", 0),
		pod("b", fine, "fine", "1", "10.0.0.2", 0),
	}

	lastCall := baseTime.Add(time.Hour)

	prober := mocks.NewMockProber(t)
	prober.EXPECT().
		Health(mock.Anything, "http://"+naming.InternalAddress(broken, testNamespace), mock.Anything).
		Return(job.Health{}, errors.New("connection refused")).
		Once()
	prober.EXPECT().
		Health(mock.Anything, "http://"+naming.InternalAddress(fine, testNamespace), mock.Anything).
		Return(job.Health{Operational: true}, nil).
		Once()
	prober.EXPECT().
		LastCallTime(mock.Anything, "http://"+naming.InternalAddress(fine, testNamespace), mock.Anything).
		Return(&lastCall, nil).
		Once()

	records := collect(t, newMonitor(channel, prober, monitor.Settings{}))
	require.Len(t, records, 2)

	byName := map[string]job.Record{}
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	require.Equal(t, job.StatusError, byName["broken"].Status)
	require.Contains(t, byName["broken"].Error, "connection refused")
	require.Equal(t, job.StatusRunning, byName["fine"].Status)
	require.Equal(t, &lastCall, byName["fine"].LastCallTime)
}

func TestMonitor_ListJobs_ListError(t *testing.T) {
	t.Parallel()

	channel := jobtest.NewChannel(testNamespace, job.TransportDirect)
	channel.ListErr = &job.CommandError{Command: "kubectl get pods", ExitCode: 1}

	_, err := newMonitor(channel, mocks.NewMockProber(t), monitor.Settings{}).ListJobs(t.Context())

	var cmdErr *job.CommandError
	require.ErrorAs(t, err, &cmdErr)
}

type usageChannel struct {
	*jobtest.Channel

	usage *resource.Quantity
	pods  []string
}

func (c *usageChannel) PodMemoryUsage(_ context.Context, pods []string) (*resource.Quantity, error) {
	c.pods = pods

	return c.usage, nil
}

func TestMonitor_ListJobs_MemoryUsage(t *testing.T) {
	t.Parallel()

	resourceName := naming.ResourceName("sentiment", "1")
	fake := jobtest.NewChannel(testNamespace, job.TransportDirect)
	fake.Pods = []job.PodFact{
		pod("p1", resourceName, "sentiment", "1", "10.0.0.1", 0),
		pod("p2", resourceName, "sentiment", "1", "10.0.0.2", time.Second),
	}

	usage := resource.MustParse("300Mi")
	channel := &usageChannel{Channel: fake, usage: &usage}

	prober := mocks.NewMockProber(t)
	healthy(prober)

	records := collect(t, newMonitor(channel, prober, monitor.Settings{}))
	require.Len(t, records, 1)
	require.Equal(t, &usage, records[0].MemoryUsage)
	require.Equal(t, []string{"p1", "p2"}, channel.pods)
}

func TestMonitor_RemoteJobAddress(t *testing.T) {
	t.Parallel()

	rec := job.Record{
		Identity:        job.Identity{Name: "sentiment", Version: "1.0.0"},
		InternalAddress: "job-sentiment.jobs.svc:7000",
	}

	t.Run("without gateway", func(t *testing.T) {
		t.Parallel()

		m := newMonitor(jobtest.NewChannel(testNamespace, job.TransportDirect), mocks.NewMockProber(t), monitor.Settings{})

		url, header := m.RemoteJobAddress(rec)
		require.Equal(t, "http://job-sentiment.jobs.svc:7000", url)
		require.Empty(t, header)
	})

	t.Run("through gateway", func(t *testing.T) {
		t.Parallel()

		m := newMonitor(jobtest.NewChannel(testNamespace, job.TransportKubectl), mocks.NewMockProber(t), monitor.Settings{
			InfrastructureTarget: "staging",
			GatewayURL:           "https://gateway.example.com/",
			GatewayToken:         "secret",
		})

		url, header := m.RemoteJobAddress(rec)
		require.Equal(t, "https://gateway.example.com/pub/remote/forward/sentiment/1.0.0", url)
		require.Equal(t, "secret", header.Get("X-Gateway-Token"))
		require.Equal(t, "staging", header.Get("X-Gateway-Target"))
		require.Equal(t, "job-sentiment.jobs.svc:7000", header.Get("X-Job-Internal-Name"))
	})
}

func conditionSettings() monitor.Settings {
	return monitor.Settings{
		ConditionInterval: 5 * time.Millisecond,
		ConditionTimeout:  200 * time.Millisecond,
	}
}

func TestMonitor_CheckJobCondition_WaitsForCurrentDeployment(t *testing.T) {
	t.Parallel()

	rec := job.Record{
		Identity:        job.Identity{Name: "sentiment", Version: "1"},
		InternalAddress: "job-sentiment-v-1.jobs.svc:7000",
	}

	prober := mocks.NewMockProber(t)
	prober.EXPECT().
		Health(mock.Anything, "http://job-sentiment-v-1.jobs.svc:7000", mock.Anything).
		Return(job.Health{Operational: true, DeploymentTimestamp: 100}, nil).
		Twice()
	prober.EXPECT().
		Health(mock.Anything, "http://job-sentiment-v-1.jobs.svc:7000", mock.Anything).
		Return(job.Health{Operational: true, DeploymentTimestamp: 200}, nil).
		Once()

	alive := 0
	m := newMonitor(jobtest.NewChannel(testNamespace, job.TransportDirect), prober, conditionSettings())

	err := m.CheckJobCondition(t.Context(), rec, 200, func() { alive++ }, true)
	require.NoError(t, err)
	require.Equal(t, 3, alive)
}

func TestMonitor_CheckJobCondition_Timeout(t *testing.T) {
	t.Parallel()

	id := job.Identity{Name: "sentiment", Version: "1"}
	resourceName := naming.ResourceName(id.Name, id.Version)
	rec := job.Record{Identity: id, InternalAddress: naming.InternalAddress(resourceName, testNamespace)}

	t.Run("appends recent logs", func(t *testing.T) {
		t.Parallel()

		channel := jobtest.NewChannel(testNamespace, job.TransportDirect)

		var gotQuery job.LogQuery

		channel.LogsFunc = func(query job.LogQuery) (string, error) {
			gotQuery = query

			return "Traceback: boom", nil
		}

		prober := mocks.NewMockProber(t)
		prober.EXPECT().
			Health(mock.Anything, mock.Anything, mock.Anything).
			Return(job.Health{}, errors.New("connection refused"))

		err := newMonitor(channel, prober, conditionSettings()).CheckJobCondition(t.Context(), rec, 0, nil, true)
		require.ErrorIs(t, err, monitor.ErrConditionTimeout)
		require.ErrorContains(t, err, "connection refused")
		require.ErrorContains(t, err, "Traceback: boom")

		var monitorErr *job.MonitorError
		require.ErrorAs(t, err, &monitorErr)

		require.Equal(t, job.LogQuery{
			Selector:  job.ResourceLabel + "=" + resourceName,
			Container: resourceName,
			Tail:      monitor.DefaultLogTail,
		}, gotQuery)
	})

	t.Run("log failure keeps original error", func(t *testing.T) {
		t.Parallel()

		channel := jobtest.NewChannel(testNamespace, job.TransportDirect)
		channel.LogsFunc = func(job.LogQuery) (string, error) {
			return "", &job.CommandError{Command: "kubectl logs", ExitCode: 1}
		}

		prober := mocks.NewMockProber(t)
		prober.EXPECT().
			Health(mock.Anything, mock.Anything, mock.Anything).
			Return(job.Health{Operational: false}, nil)

		err := newMonitor(channel, prober, conditionSettings()).CheckJobCondition(t.Context(), rec, 0, nil, true)
		require.ErrorIs(t, err, monitor.ErrConditionTimeout)
		require.ErrorIs(t, err, monitor.ErrNotOperational)
		require.NotContains(t, err.Error(), "kubectl logs")
	})

	t.Run("logs not requested", func(t *testing.T) {
		t.Parallel()

		channel := jobtest.NewChannel(testNamespace, job.TransportDirect)
		channel.LogsFunc = func(job.LogQuery) (string, error) {
			t.Error("logs must not be read")

			return "", nil
		}

		prober := mocks.NewMockProber(t)
		prober.EXPECT().
			Health(mock.Anything, mock.Anything, mock.Anything).
			Return(job.Health{Operational: true, DeploymentTimestamp: 1}, nil)

		err := newMonitor(channel, prober, conditionSettings()).CheckJobCondition(t.Context(), rec, 2, nil, false)
		require.ErrorIs(t, err, monitor.ErrStaleDeployment)
	})
}

func TestMonitor_ReadRecentLogs(t *testing.T) {
	t.Parallel()

	channel := jobtest.NewChannel(testNamespace, job.TransportKubectl)
	channel.LogsFunc = func(query job.LogQuery) (string, error) {
		require.Equal(t, 5, query.Tail)

		return "line\n", nil
	}

	m := newMonitor(channel, mocks.NewMockProber(t), monitor.Settings{})

	logs, err := m.ReadRecentLogs(t.Context(), job.Identity{Name: "sentiment", Version: "1"}, 5)
	require.NoError(t, err)
	require.Equal(t, "line\n", logs)
}
