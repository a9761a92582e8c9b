package kubectl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	corev1 "k8s.io/api/core/v1"

	"github.com/skillcoder/jobadapter/internal/adapters/outbound/k8s"
	"github.com/skillcoder/jobadapter/internal/logic/job"
)

const (
	// DefaultPath is where kubectl is installed in the adapter image.
	DefaultPath = "/opt/kubectl"

	heredocMarker = "JOBADAPTER_DOCUMENT_EOF"
)

// Adapter is a job.Channel issuing textual kubectl commands through a CommandRunner.
type Adapter struct {
	logger    *slog.Logger
	runner    CommandRunner
	path      string
	namespace string
}

// New creates a kubectl channel for one namespace.
func New(logger *slog.Logger, runner CommandRunner, path, namespace string) *Adapter {
	if path == "" {
		path = DefaultPath
	}

	return &Adapter{
		logger:    logger.With("component", "kubectl-channel", "namespace", namespace),
		runner:    runner,
		path:      path,
		namespace: namespace,
	}
}

var _ job.Channel = (*Adapter)(nil)

func (a *Adapter) Namespace() string {
	return a.namespace
}

func (a *Adapter) Transport() job.Transport {
	return job.TransportKubectl
}

func (a *Adapter) command(args ...string) string {
	return shellquote.Join(append([]string{a.path, "-n", a.namespace}, args...)...)
}

func ref(kind job.Kind, name string) string {
	return string(kind) + "/" + name
}

// Apply pipes the document into kubectl apply through a quoted heredoc.
func (a *Adapter) Apply(ctx context.Context, document []byte) error {
	body := strings.TrimRight(string(document), "\n")

	for line := range strings.Lines(body) {
		if strings.TrimRight(line, "\n") == heredocMarker {
			return ErrHeredocMarker
		}
	}

	command := fmt.Sprintf("cat <<'%s' | %s\n%s\n%s",
		heredocMarker, a.command("apply", "-f", "-"), body, heredocMarker)

	output, err := a.runner.Run(ctx, command)
	if err != nil {
		return fmt.Errorf("apply document: %w", err)
	}

	a.logger.DebugContext(ctx, "applied document", "output", strings.TrimSpace(output))

	return nil
}

func (a *Adapter) Delete(ctx context.Context, kind job.Kind, name string) error {
	output, err := a.runner.Run(ctx, a.command("delete", ref(kind, name), "--ignore-not-found"))
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref(kind, name), err)
	}

	if strings.TrimSpace(output) == "" {
		a.logger.WarnContext(ctx, "object to delete was not found", "kind", kind, "name", name)
	}

	return nil
}

func (a *Adapter) Exists(ctx context.Context, kind job.Kind, name string) (bool, error) {
	output, err := a.runner.Run(ctx, a.command("get", ref(kind, name), "--ignore-not-found", "-o", "name"))
	if err != nil {
		return false, fmt.Errorf("check %s: %w", ref(kind, name), err)
	}

	return strings.TrimSpace(output) != "", nil
}

func (a *Adapter) Get(ctx context.Context, kind job.Kind, name string) ([]byte, error) {
	output, err := a.runner.Run(ctx, a.command("get", ref(kind, name), "--ignore-not-found", "-o", "json"))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref(kind, name), err)
	}

	output = strings.TrimSpace(output)
	if output == "" {
		return nil, &job.NotFoundError{Kind: kind, Name: name}
	}

	return []byte(output), nil
}

func (a *Adapter) Execute(ctx context.Context, command string) (string, error) {
	output, err := a.runner.Run(ctx, command)
	if err != nil {
		return "", fmt.Errorf("execute command: %w", err)
	}

	return output, nil
}

func (a *Adapter) ListPods(ctx context.Context, selector string) ([]job.PodFact, error) {
	output, err := a.runner.Run(ctx, a.command("get", "pods", "--selector="+selector, "-o", "json"))
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	var podList corev1.PodList
	if err := json.Unmarshal([]byte(output), &podList); err != nil {
		return nil, fmt.Errorf("decode pod list: %w", err)
	}

	pods := make([]job.PodFact, 0, len(podList.Items))

	for i := range podList.Items {
		pod := &podList.Items[i]
		if pod.DeletionTimestamp != nil {
			continue
		}

		pods = append(pods, k8s.ToPodFact(pod))
	}

	return pods, nil
}

func (a *Adapter) Logs(ctx context.Context, query job.LogQuery) (string, error) {
	args := []string{"logs", "--selector=" + query.Selector, "--tail=" + strconv.Itoa(max(query.Tail, -1))}

	switch {
	case query.AllContainers || query.Container == "":
		args = append(args, "--all-containers=true")
	default:
		args = append(args, "--container="+query.Container)
	}

	if !query.Since.IsZero() {
		args = append(args, "--since-time="+query.Since.UTC().Format(time.RFC3339Nano))
	}

	output, err := a.runner.Run(ctx, a.command(args...))
	if err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}

	return output, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.runner.Run(ctx, a.command("get", "namespace", a.namespace, "-o", "name")); err != nil {
		return fmt.Errorf("ping cluster: %w", err)
	}

	return nil
}
