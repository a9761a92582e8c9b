package httpserver_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/jobadapter/internal/httpserver"
	"github.com/skillcoder/jobadapter/internal/infra/appstate"
	"github.com/skillcoder/jobadapter/internal/infra/pinger"
	"github.com/skillcoder/jobadapter/internal/logic/deployer"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/logstream"
	"github.com/skillcoder/jobadapter/internal/logic/monitor"
	"github.com/skillcoder/jobadapter/internal/logic/target"
)

type fakeTarget struct {
	mu sync.Mutex

	records   []job.Record
	listErr   error
	deployErr error
	deployRec job.Record
	deleteErr error
	exists    bool
	existsErr error
	secrets   *job.Secrets
	logs      string
	lines     []string
	endLines  bool
	done      chan struct{}

	gotDeploy  deployer.DeployRequest
	gotOptions target.DeployOptions
	gotSecrets job.Secrets
	gotDeleted job.Identity
	gotTail    int
	closed     []string
}

func (f *fakeTarget) TargetName() string       { return "local" }
func (f *fakeTarget) Transport() job.Transport { return job.TransportDirect }
func (f *fakeTarget) Namespace() string        { return "jobs" }

func (f *fakeTarget) ListJobs(context.Context) (iter.Seq[job.Record], error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	return slices.Values(f.records), nil
}

func (f *fakeTarget) Deploy(_ context.Context, req deployer.DeployRequest, opts target.DeployOptions) (job.Record, error) {
	f.gotDeploy = req
	f.gotOptions = opts

	return f.deployRec, f.deployErr
}

func (f *fakeTarget) Delete(_ context.Context, id job.Identity) error {
	f.gotDeleted = id

	return f.deleteErr
}

func (f *fakeTarget) Exists(context.Context, job.Identity) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeTarget) LoadSecrets(_ context.Context, id job.Identity) (job.Secrets, error) {
	if f.secrets == nil {
		return job.Secrets{}, fmt.Errorf("get secret: %w", &job.NotFoundError{
			Kind: job.KindSecret,
			Name: id.Name + "-" + id.Version,
		})
	}

	return *f.secrets, nil
}

func (f *fakeTarget) SaveSecrets(_ context.Context, _ job.Identity, secrets job.Secrets) error {
	f.gotSecrets = secrets

	return nil
}

func (f *fakeTarget) ReadRecentLogs(_ context.Context, _ job.Identity, tail int) (string, error) {
	f.gotTail = tail

	return f.logs, nil
}

func (f *fakeTarget) OpenLogSession(
	_ context.Context,
	sessionID string,
	_ logstream.Target,
	onLine logstream.LineHandler,
) error {
	f.mu.Lock()
	if f.endLines {
		f.done = make(chan struct{})
	}
	done := f.done
	f.mu.Unlock()

	go func() {
		for _, line := range f.lines {
			onLine(sessionID, line)
		}

		if done != nil {
			close(done)
		}
	}()

	return nil
}

func (f *fakeTarget) LogSessionDone(string) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.done
}

func (f *fakeTarget) CloseLogSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = append(f.closed, sessionID)
}

func runningState(t *testing.T) *appstate.AppState {
	t.Helper()

	logger := slog.Default()
	state := appstate.New(logger, time.Now(), filepath.Join(t.TempDir(), "terminating"),
		make(chan os.Signal, 1), pinger.New(logger, time.Hour, nil))
	require.NoError(t, state.SetStarting(t.Context()))
	require.NoError(t, state.SetRunning(t.Context()))

	return state
}

func newHandler(t *testing.T, fake *fakeTarget) http.Handler {
	t.Helper()

	srv := httpserver.New(slog.Default(), runningState(t), "", map[string]httpserver.TargetService{"local": fake})

	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequestWithContext(t.Context(), method, path, strings.NewReader(body))

	h.ServeHTTP(rec, req)

	return rec
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	h := newHandler(t, &fakeTarget{})

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/-/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/-/readyz", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/-/status", "").Code)
}

func TestServer_ListTargets(t *testing.T) {
	t.Parallel()

	rec := do(t, newHandler(t, &fakeTarget{}), http.MethodGet, "/api/v1/targets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"name":"local","transport":"direct","namespace":"jobs"}]`, rec.Body.String())
}

func TestServer_ListJobs(t *testing.T) {
	t.Parallel()

	usage := resource.MustParse("128Mi")
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fake := &fakeTarget{records: []job.Record{{
		Identity:             job.Identity{Name: "adder", Version: "1.0.0"},
		Status:               job.StatusRunning,
		CreateTime:           created,
		UpdateTime:           created,
		InternalAddress:      "job-adder-v-1-0-0.jobs.svc:7000",
		InfrastructureTarget: "local",
		MemoryUsage:          &usage,
	}}}

	rec := do(t, newHandler(t, fake), http.MethodGet, "/api/v1/targets/local/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "adder", body[0]["name"])
	require.Equal(t, "RUNNING", body[0]["status"])
	require.Equal(t, "128Mi", body[0]["memory_usage"])
	require.Equal(t, []any{}, body[0]["replica_addresses"])
	require.NotContains(t, body[0], "last_call_time")
}

type statusCase struct {
	name       string
	giveMethod string
	givePath   string
	giveBody   string
	giveTarget *fakeTarget
	wantCode   int
}

func TestServer_ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []statusCase{
		{
			name:       "unknown target",
			giveMethod: http.MethodGet,
			givePath:   "/api/v1/targets/remote/jobs",
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusNotFound,
		},
		{
			name:       "list failure",
			giveMethod: http.MethodGet,
			givePath:   "/api/v1/targets/local/jobs",
			giveTarget: &fakeTarget{listErr: &job.CommandError{Command: "kubectl get pods", ExitCode: 1}},
			wantCode:   http.StatusInternalServerError,
		},
		{
			name:       "malformed deploy body",
			giveMethod: http.MethodPost,
			givePath:   "/api/v1/targets/local/jobs",
			giveBody:   "{",
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusBadRequest,
		},
		{
			name:       "bad quantity",
			giveMethod: http.MethodPost,
			givePath:   "/api/v1/targets/local/jobs",
			giveBody:   `{"manifest":{"name":"a","version":"1","resources":{"memory_max":"lots"}}}`,
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusBadRequest,
		},
		{
			name:       "label key injection",
			giveMethod: http.MethodPost,
			givePath:   "/api/v1/targets/local/jobs",
			giveBody:   `{"manifest":{"name":"a","version":"1","labels":{"x: y\n        evil":"1"}}}`,
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusBadRequest,
		},
		{
			name:       "reserved label key",
			giveMethod: http.MethodPost,
			givePath:   "/api/v1/targets/local/jobs",
			giveBody:   `{"manifest":{"name":"a","version":"1","labels":{"jobadapter.k8s.skillcoder.com/job":"job-b-v-1"}}}`,
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusBadRequest,
		},
		{
			name:       "configuration error",
			giveMethod: http.MethodPost,
			givePath:   "/api/v1/targets/local/jobs",
			giveBody:   `{"manifest":{"name":"a","version":"1"}}`,
			giveTarget: &fakeTarget{deployErr: &job.ConfigurationError{Err: job.ErrReservedEnv, Keys: []string{"JOB_NAME"}}},
			wantCode:   http.StatusUnprocessableEntity,
		},
		{
			name:       "delete of missing job",
			giveMethod: http.MethodDelete,
			givePath:   "/api/v1/targets/local/jobs/adder/1.0.0",
			giveTarget: &fakeTarget{deleteErr: &job.NotFoundError{Kind: job.KindDeployment, Name: "x"}},
			wantCode:   http.StatusNotFound,
		},
		{
			name:       "missing secrets",
			giveMethod: http.MethodGet,
			givePath:   "/api/v1/targets/local/jobs/adder/1.0.0/secrets",
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusNotFound,
		},
		{
			name:       "secrets of unknown target",
			giveMethod: http.MethodGet,
			givePath:   "/api/v1/targets/remote/jobs/adder/1.0.0/secrets",
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusNotFound,
		},
		{
			name:       "existence check failure",
			giveMethod: http.MethodGet,
			givePath:   "/api/v1/targets/local/jobs/adder/1.0.0",
			giveTarget: &fakeTarget{existsErr: &job.CommandError{Command: "kubectl get deployment", ExitCode: 1}},
			wantCode:   http.StatusInternalServerError,
		},
		{
			name:       "negative tail",
			giveMethod: http.MethodGet,
			givePath:   "/api/v1/targets/local/jobs/adder/1.0.0/logs?tail=-1",
			giveTarget: &fakeTarget{},
			wantCode:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, newHandler(t, tt.giveTarget), tt.giveMethod, tt.givePath, tt.giveBody)
			require.Equal(t, tt.wantCode, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestServer_Deploy(t *testing.T) {
	t.Parallel()

	fake := &fakeTarget{deployRec: job.Record{
		Identity: job.Identity{Name: "adder", Version: "1.0.0"},
		Status:   job.StatusRunning,
	}}

	body := `{
		"manifest": {"name": "adder", "version": "1.0.0", "owner": "ops", "resources": {"memory_max": "2Gi"}},
		"tag": "abc123",
		"family": "adder",
		"runtime_env": {"DEBUG": "1"},
		"container_count": 2,
		"secrets": {"secret_runtime_env": {"API_KEY": "k"}},
		"wait": true
	}`

	rec := do(t, newHandler(t, fake), http.MethodPost, "/api/v1/targets/local/jobs", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Equal(t, "adder", fake.gotDeploy.Manifest.Name)
	require.Equal(t, "abc123", fake.gotDeploy.Tag)
	require.Equal(t, 2, fake.gotDeploy.ContainerCount)
	require.Equal(t, map[string]string{"DEBUG": "1"}, fake.gotDeploy.RuntimeEnv)
	require.NotNil(t, fake.gotDeploy.Manifest.Resources.MemoryMax)
	require.Equal(t, "2Gi", fake.gotDeploy.Manifest.Resources.MemoryMax.String())
	require.Nil(t, fake.gotDeploy.Manifest.Resources.MemoryMin)
	require.True(t, fake.gotOptions.Wait)
	require.Equal(t, map[string]string{"API_KEY": "k"}, fake.gotOptions.Secrets.RuntimeEnv)
}

func TestServer_Deploy_WaitFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeTarget{
		deployRec: job.Record{
			Identity: job.Identity{Name: "adder", Version: "1.0.0"},
			Status:   job.StatusError,
			Error:    "condition timeout",
		},
		deployErr: &job.MonitorError{Stage: "condition", Err: monitor.ErrConditionTimeout},
	}

	rec := do(t, newHandler(t, fake), http.MethodPost, "/api/v1/targets/local/jobs",
		`{"manifest":{"name":"adder","version":"1.0.0"},"wait":true}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ERROR", body["status"])
}

func TestServer_DeleteAndSecrets(t *testing.T) {
	t.Parallel()

	fake := &fakeTarget{}
	h := newHandler(t, fake)

	rec := do(t, h, http.MethodDelete, "/api/v1/targets/local/jobs/adder/1.0.0", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, job.Identity{Name: "adder", Version: "1.0.0"}, fake.gotDeleted)

	rec = do(t, h, http.MethodPut, "/api/v1/targets/local/jobs/adder/1.0.0/secrets",
		`{"git_credentials":{"username":"bot","password":"pw"},"secret_build_env":{"PIP":"x"}}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, &job.Credentials{Username: "bot", Password: "pw"}, fake.gotSecrets.GitCredentials)
	require.Equal(t, map[string]string{"PIP": "x"}, fake.gotSecrets.BuildEnv)
}

func TestServer_LoadSecrets(t *testing.T) {
	t.Parallel()

	fake := &fakeTarget{secrets: &job.Secrets{
		GitCredentials: &job.Credentials{Username: "bot", Password: "pw"},
		BuildEnv:       map[string]string{"PIP": "x"},
		RuntimeEnv:     map[string]string{},
	}}

	rec := do(t, newHandler(t, fake), http.MethodGet, "/api/v1/targets/local/jobs/adder/1.0.0/secrets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"git_credentials": {"username": "bot", "password": "pw"},
		"secret_build_env": {"PIP": "x"},
		"secret_runtime_env": {}
	}`, rec.Body.String())
}

type existsCase struct {
	name       string
	giveExists bool
	want       string
}

func TestServer_Exists(t *testing.T) {
	t.Parallel()

	tests := []existsCase{
		{
			name:       "deployed",
			giveExists: true,
			want:       `{"name":"adder","version":"1.0.0","exists":true}`,
		},
		{
			name:       "absent",
			giveExists: false,
			want:       `{"name":"adder","version":"1.0.0","exists":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, newHandler(t, &fakeTarget{exists: tt.giveExists}),
				http.MethodGet, "/api/v1/targets/local/jobs/adder/1.0.0", "")
			require.Equal(t, http.StatusOK, rec.Code)
			require.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestServer_RecentLogs(t *testing.T) {
	t.Parallel()

	fake := &fakeTarget{logs: "one\ntwo\n"}

	rec := do(t, newHandler(t, fake), http.MethodGet, "/api/v1/targets/local/jobs/adder/1.0.0/logs?tail=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "one\ntwo\n", rec.Body.String())
	require.Equal(t, 5, fake.gotTail)
}

func TestServer_StreamLogs(t *testing.T) {
	t.Parallel()

	fake := &fakeTarget{lines: []string{"first", "second"}}
	ts := httptest.NewServer(newHandler(t, fake))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/targets/local/jobs/adder/1.0.0/logs/stream", http.NoBody)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sessionID := resp.Header.Get("X-Log-Session")
	require.NotEmpty(t, sessionID)

	var got []string

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(got) < 2 {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			got = append(got, data)
		}
	}

	require.Equal(t, []string{"first", "second"}, got)

	cancel()

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()

		return slices.Contains(fake.closed, sessionID)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_StreamLogs_EndsWithSession(t *testing.T) {
	t.Parallel()

	fake := &fakeTarget{lines: []string{"first", "second", "last"}, endLines: true}
	ts := httptest.NewServer(newHandler(t, fake))
	t.Cleanup(ts.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet,
		ts.URL+"/api/v1/targets/local/jobs/adder/1.0.0/logs/stream", http.NoBody)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "data: first\n\ndata: second\n\ndata: last\n\n", string(body))

	fake.mu.Lock()
	defer fake.mu.Unlock()

	require.Contains(t, fake.closed, resp.Header.Get("X-Log-Session"))
}

func TestServer_StartShutdown(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(slog.Default(), runningState(t), "0", nil)
	require.Equal(t, "http-server", srv.Name())
	require.ErrorIs(t, srv.Ping(t.Context()), httpserver.ErrServerNotReady)

	require.NoError(t, srv.Start(t.Context()))

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}

	require.NoError(t, srv.Ping(t.Context()))
	require.NotNil(t, srv.Addr())

	url := fmt.Sprintf("http://127.0.0.1:%d/-/healthz", srv.Addr().Port)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(t.Context()))
	require.NoError(t, srv.Shutdown(t.Context()))
}
