package appstate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillcoder/jobadapter/internal/infra/pinger"
)

const (
	probePass = "pass"
	probeFail = "fail"
)

type probeResponse struct {
	Status  string   `json:"status"`
	State   string   `json:"state"`
	Failing []string `json:"failing,omitempty"`
}

type statusResponse struct {
	State         string                        `json:"state"`
	Uptime        string                        `json:"uptime"`
	StartTime     time.Time                     `json:"startTime"`
	ReadyTime     *time.Time                    `json:"readyTime,omitempty"`
	TerminateTime *time.Time                    `json:"terminateTime,omitempty"`
	UptimeSec     float64                       `json:"uptimeSeconds"`
	Checks        map[string]*pinger.Statistics `json:"checks"`
}

// failingChecks lists, in name order, the checks whose statistics fail ok.
func failingChecks(stats map[string]*pinger.Statistics, ok func(*pinger.Statistics) bool) []string {
	var failing []string

	for name, st := range stats {
		if !ok(st) {
			failing = append(failing, name)
		}
	}

	slices.Sort(failing)

	return failing
}

func writeJSON(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorContext(ctx, "failed to encode probe response", "reason", err)
	}
}

func writeProbe(
	ctx context.Context,
	logger *slog.Logger,
	w http.ResponseWriter,
	probe string,
	passed bool,
	appState probeState,
	ok func(*pinger.Statistics) bool,
) {
	resp := probeResponse{Status: probePass, State: string(appState.GetState())}
	code := http.StatusOK

	if !passed {
		resp.Status = probeFail
		resp.Failing = failingChecks(appState.GetAllStats(), ok)
		code = http.StatusServiceUnavailable
	}

	logger.DebugContext(ctx, probe+" check "+resp.Status, "failing", resp.Failing)
	writeJSON(ctx, logger, w, code, resp)
}

// HandleHealthz returns an http.HandlerFunc for the /-/healthz endpoint
func HandleHealthz(
	logger *slog.Logger,
	appState healthChecker,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logger.With("traceID", middleware.GetReqID(ctx))

		writeProbe(ctx, logger, w, "health", appState.IsHealthy(), appState,
			func(st *pinger.Statistics) bool { return st.IsHealthy })
	}
}

// HandleReadyz returns an http.HandlerFunc for the /-/readyz endpoint
func HandleReadyz(
	logger *slog.Logger,
	appState readyChecker,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logger.With("traceID", middleware.GetReqID(ctx))

		writeProbe(ctx, logger, w, "readiness", appState.IsReady(), appState,
			func(st *pinger.Statistics) bool { return st.IsReady })
	}
}

// HandleStatus returns an http.HandlerFunc for the /-/status endpoint
func HandleStatus(
	logger *slog.Logger,
	appState statusGetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logger.With("traceID", middleware.GetReqID(ctx))

		uptime := appState.GetUptime()

		writeJSON(ctx, logger, w, http.StatusOK, statusResponse{
			State:         string(appState.GetState()),
			Uptime:        uptime.String(),
			StartTime:     appState.GetStartTime(),
			ReadyTime:     appState.GetReadyTime(),
			TerminateTime: appState.GetTerminateTime(),
			UptimeSec:     uptime.Seconds(),
			Checks:        appState.GetAllStats(),
		})
	}
}
