package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

const (
	// TokenHeader authenticates every request to the remote gateway.
	TokenHeader = "X-Gateway-Token"

	// TargetHeader names the infrastructure target a request is aimed at.
	TargetHeader = "X-Gateway-Target"

	commandPath        = "/remote/command"
	defaultTimeout     = 2 * time.Minute
	maxErrorBodyLength = 4096
)

type commandRequest struct {
	Command string `json:"command"`
	Workdir string `json:"workdir,omitempty"`
}

type commandResponse struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// Runner forwards commands to a remote gateway that runs them next to the cluster.
type Runner struct {
	logger  *slog.Logger
	client  *http.Client
	url     string
	token   string
	target  string
	workdir string
}

// New creates a gateway runner for the named infrastructure target.
// A nil client gets one with a two minute timeout.
func New(logger *slog.Logger, client *http.Client, gatewayURL, token, targetName, workdir string) *Runner {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Runner{
		logger:  logger.With("component", "gateway-runner", "target", targetName),
		client:  client,
		url:     strings.TrimRight(gatewayURL, "/") + commandPath,
		token:   token,
		target:  targetName,
		workdir: workdir,
	}
}

// Run sends command to the gateway and returns the combined output it relays.
func (r *Runner) Run(ctx context.Context, command string) (string, error) {
	body, err := json.Marshal(commandRequest{Command: command, Workdir: r.workdir})
	if err != nil {
		return "", fmt.Errorf("marshal command request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, r.token)
	req.Header.Set(TargetHeader, r.target)

	start := time.Now()

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &job.CommandError{Command: command, ExitCode: -1, Err: fmt.Errorf("call remote gateway: %w", err)}
	}
	defer resp.Body.Close()

	r.logger.DebugContext(ctx, "gateway command finished",
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))

		return "", &job.CommandError{
			Command:  command,
			ExitCode: -1,
			Stdout:   string(detail),
			Err:      fmt.Errorf("%w: %s", ErrGatewayStatus, resp.Status),
		}
	}

	var result commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}

	if result.ExitCode != 0 {
		return "", &job.CommandError{Command: command, ExitCode: result.ExitCode, Stdout: result.Output}
	}

	return result.Output, nil
}
