package job

import (
	"context"
	"io"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Channel is the port to a cluster. One implementation is selected per
// infrastructure target and used by the deployer, monitor and log streamer.
type Channel interface {
	// Apply creates or updates every object of a rendered YAML document.
	Apply(ctx context.Context, document []byte) error

	// Delete removes an object; a missing object is logged and not an error.
	Delete(ctx context.Context, kind Kind, name string) error

	Exists(ctx context.Context, kind Kind, name string) (bool, error)

	// Get returns the object as JSON or a *NotFoundError.
	Get(ctx context.Context, kind Kind, name string) ([]byte, error)

	// Execute runs a raw cluster-admin command and returns its output.
	Execute(ctx context.Context, command string) (string, error)

	// ListPods lists alive pods matching the label selector. Terminating pods are excluded.
	ListPods(ctx context.Context, selector string) ([]PodFact, error)

	Logs(ctx context.Context, query LogQuery) (string, error)

	Namespace() string
	Transport() Transport
	Ping(ctx context.Context) error
}

// LogStreamer is implemented by channels able to follow a pod log as it grows.
type LogStreamer interface {
	StreamLogs(ctx context.Context, pod, container string, tail int) (io.ReadCloser, error)
}

// UsageReader is implemented by channels with access to the metrics API.
type UsageReader interface {
	PodMemoryUsage(ctx context.Context, pods []string) (*resource.Quantity, error)
}
