package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/skillcoder/jobadapter/internal/logic/deployer"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/logstream"
	"github.com/skillcoder/jobadapter/internal/logic/target"
)

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode response", "reason", err)
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed",
			"traceID", middleware.GetReqID(ctx),
			"reason", err,
		)
	}

	s.writeJSON(ctx, w, code, errorResponse{Error: err.Error()})
}

func errorStatus(err error) int {
	var (
		cfgErr     *job.ConfigurationError
		monitorErr *job.MonitorError
	)

	switch {
	case errors.Is(err, ErrUnknownTarget), job.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidBody),
		errors.Is(err, ErrInvalidTail),
		errors.Is(err, deployer.ErrInvalidRequest),
		errors.Is(err, deployer.ErrUnknownFamily),
		errors.Is(err, logstream.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &monitorErr):
		return http.StatusBadGateway
	case errors.Is(err, logstream.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) lookup(r *http.Request) (TargetService, error) {
	name := chi.URLParam(r, "target")

	svc, ok := s.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}

	return svc, nil
}

func identity(r *http.Request) job.Identity {
	return job.Identity{Name: chi.URLParam(r, "name"), Version: chi.URLParam(r, "version")}
}

func parseTail(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("tail")
	if raw == "" {
		return 0, nil
	}

	tail, err := strconv.Atoi(raw)
	if err != nil || tail < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTail, raw)
	}

	return tail, nil
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}

	slices.Sort(names)

	resp := make([]targetResponse, 0, len(names))
	for _, name := range names {
		svc := s.targets[name]
		resp = append(resp, targetResponse{
			Name:      name,
			Transport: string(svc.Transport()),
			Namespace: svc.Namespace(),
		})
	}

	s.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	records, err := svc.ListJobs(ctx)
	if err != nil {
		s.writeError(ctx, w, fmt.Errorf("list jobs: %w", err))

		return
	}

	resp := make([]jobResponse, 0)
	for rec := range records {
		resp = append(resp, toJobResponse(rec))
	}

	s.writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	var body deployBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(ctx, w, fmt.Errorf("%w: %w", ErrInvalidBody, err))

		return
	}

	req, err := body.toRequest()
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	opts := target.DeployOptions{Wait: body.Wait}
	if body.Secrets != nil {
		secrets := body.Secrets.toSecrets()
		opts.Secrets = &secrets
	}

	if body.Wait {
		// waiting outlives the default write deadline
		_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(deployTimeout))
	}

	rec, err := svc.Deploy(ctx, req, opts)
	if err != nil {
		if rec.Name == "" {
			s.writeError(ctx, w, err)

			return
		}

		s.writeJSON(ctx, w, errorStatus(err), toJobResponse(rec))

		return
	}

	s.writeJSON(ctx, w, http.StatusCreated, toJobResponse(rec))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	if err := svc.Delete(ctx, identity(r)); err != nil {
		s.writeError(ctx, w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExists reports whether the job deployment is present on the target.
func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	id := identity(r)

	exists, err := svc.Exists(ctx, id)
	if err != nil {
		s.writeError(ctx, w, fmt.Errorf("check job: %w", err))

		return
	}

	s.writeJSON(ctx, w, http.StatusOK, existsResponse{Name: id.Name, Version: id.Version, Exists: exists})
}

func (s *Server) handleLoadSecrets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	secrets, err := svc.LoadSecrets(ctx, identity(r))
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	s.writeJSON(ctx, w, http.StatusOK, toSecretsBody(secrets))
}

func (s *Server) handleSaveSecrets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	var body secretsBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(ctx, w, fmt.Errorf("%w: %w", ErrInvalidBody, err))

		return
	}

	if err := svc.SaveSecrets(ctx, identity(r), body.toSecrets()); err != nil {
		s.writeError(ctx, w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	tail, err := parseTail(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	logs, err := svc.ReadRecentLogs(ctx, identity(r), tail)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(logs))
}

// handleStreamLogs opens a log session and forwards its lines as server-sent
// events until the client goes away.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, err := s.lookup(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	tail, err := parseTail(r)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.writeError(ctx, w, fmt.Errorf("%w: %w", ErrNotStreamable, err))

		return
	}

	id := identity(r)
	sessionID := uuid.NewString()
	lines := make(chan string, 64)

	onLine := func(_, line string) {
		select {
		case lines <- line:
		case <-ctx.Done():
		}
	}

	err = svc.OpenLogSession(ctx, sessionID, logstream.Target{JobName: id.Name, JobVersion: id.Version, Tail: tail}, onLine)
	if err != nil {
		s.writeError(ctx, w, err)

		return
	}
	defer svc.CloseLogSession(sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Log-Session", sessionID)
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	done := svc.LogSessionDone(sessionID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			// the task pushed its last line before exiting
			for {
				select {
				case line := <-lines:
					if !writeEvent(w, rc, line) {
						return
					}
				default:
					return
				}
			}
		case line := <-lines:
			if !writeEvent(w, rc, line) {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, line string) bool {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
		return false
	}

	return rc.Flush() == nil
}
