package appstate

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/jobadapter/internal/infra/pinger"
)

type fakeState struct {
	healthy bool
	ready   bool
	state   State
	started time.Time
	uptime  time.Duration
	readyAt *time.Time
	checks  map[string]*pinger.Statistics
}

func (f *fakeState) IsHealthy() bool                            { return f.healthy }
func (f *fakeState) IsReady() bool                              { return f.ready }
func (f *fakeState) GetState() State                            { return f.state }
func (f *fakeState) GetUptime() time.Duration                   { return f.uptime }
func (f *fakeState) GetStartTime() time.Time                    { return f.started }
func (f *fakeState) GetReadyTime() *time.Time                   { return f.readyAt }
func (f *fakeState) GetTerminateTime() *time.Time               { return nil }
func (f *fakeState) GetAllStats() map[string]*pinger.Statistics { return f.checks }

type probeCase struct {
	name        string
	give        *fakeState
	wantCode    int
	wantStatus  string
	wantFailing []string
}

func decodeProbe(t *testing.T, rec *httptest.ResponseRecorder) probeResponse {
	t.Helper()

	var body probeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	return body
}

func serve(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)

	handler.ServeHTTP(rec, req)

	return rec
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	tests := []probeCase{
		{
			name:       "healthy returns 200",
			give:       &fakeState{healthy: true, state: StateRunning},
			wantCode:   http.StatusOK,
			wantStatus: probePass,
		},
		{
			name: "unhealthy lists failing checks",
			give: &fakeState{
				state: StateRunning,
				checks: map[string]*pinger.Statistics{
					"target/remote": {IsHealthy: false, IsReady: false},
					"http-server":   {IsHealthy: true, IsReady: true},
					"target/local":  {IsHealthy: false, IsReady: true},
				},
			},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  probeFail,
			wantFailing: []string{"target/local", "target/remote"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, HandleHealthz(slog.Default(), tt.give), "/-/healthz")
			require.Equal(t, tt.wantCode, rec.Code)

			body := decodeProbe(t, rec)
			require.Equal(t, tt.wantStatus, body.Status)
			require.Equal(t, string(tt.give.state), body.State)
			require.Equal(t, tt.wantFailing, body.Failing)
		})
	}
}

func TestHandleReadyz(t *testing.T) {
	t.Parallel()

	tests := []probeCase{
		{
			name:       "ready returns 200",
			give:       &fakeState{ready: true, state: StateRunning},
			wantCode:   http.StatusOK,
			wantStatus: probePass,
		},
		{
			name:       "starting is not ready",
			give:       &fakeState{healthy: true, state: StateStarting},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: probeFail,
		},
		{
			name: "failing ready-critical check",
			give: &fakeState{
				healthy: true,
				state:   StateRunning,
				checks: map[string]*pinger.Statistics{
					"job-survey":   {IsHealthy: true, IsReady: false},
					"target/local": {IsHealthy: true, IsReady: true},
				},
			},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  probeFail,
			wantFailing: []string{"job-survey"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, HandleReadyz(slog.Default(), tt.give), "/-/readyz")
			require.Equal(t, tt.wantCode, rec.Code)

			body := decodeProbe(t, rec)
			require.Equal(t, tt.wantStatus, body.Status)
			require.Equal(t, tt.wantFailing, body.Failing)
		})
	}
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	readyAt := time.Date(2025, 1, 15, 10, 0, 2, 0, time.UTC)
	give := &fakeState{
		state:   StateRunning,
		readyAt: &readyAt,
		started: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		uptime:  5 * time.Second,
		checks: map[string]*pinger.Statistics{
			"target/local": {IsReady: true, IsHealthy: true},
		},
	}

	rec := serve(t, HandleStatus(slog.Default(), give), "/-/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		State         string     `json:"state"`
		Uptime        string     `json:"uptime"`
		UptimeSec     float64    `json:"uptimeSeconds"`
		ReadyTime     *time.Time `json:"readyTime"`
		TerminateTime *time.Time `json:"terminateTime"`
		Checks        map[string]struct {
			Ready bool `json:"ready"`
		} `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	require.Equal(t, string(StateRunning), body.State)
	require.Equal(t, "5s", body.Uptime)
	require.InDelta(t, 5.0, body.UptimeSec, 0.001)
	require.True(t, body.Checks["target/local"].Ready)
	require.NotNil(t, body.ReadyTime)
	require.True(t, readyAt.Equal(*body.ReadyTime))
	require.Nil(t, body.TerminateTime)
}
