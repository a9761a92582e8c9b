// Package jobtest provides an in-memory job.Channel for tests.
package jobtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// Channel is an in-memory cluster. Objects are keyed by lowercased kind and name.
type Channel struct {
	mu        sync.Mutex
	namespace string
	transport job.Transport
	objects   map[string][]byte
	calls     []string

	Pods      []job.PodFact
	ApplyErr  error
	DeleteErr error
	ListErr   error
	// LogsFunc answers Logs; nil returns no output.
	LogsFunc func(query job.LogQuery) (string, error)
	// StreamFunc answers StreamLogs; nil reports job.ErrUnsupported.
	StreamFunc func(ctx context.Context, pod, container string) (io.ReadCloser, error)
}

// NewChannel creates an empty fake cluster.
func NewChannel(namespace string, transport job.Transport) *Channel {
	return &Channel{
		namespace: namespace,
		transport: transport,
		objects:   make(map[string][]byte),
	}
}

var (
	_ job.Channel     = (*Channel)(nil)
	_ job.LogStreamer = (*Channel)(nil)
)

func key(kind job.Kind, name string) string {
	return strings.ToLower(string(kind)) + "/" + name
}

func (c *Channel) record(call string) {
	c.calls = append(c.calls, call)
}

// Calls returns the operations performed so far, e.g. "apply deployment/x" or "delete secret/x".
func (c *Channel) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.calls...)
}

// Put stores an object as if it had been applied.
func (c *Channel) Put(kind job.Kind, name string, object []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.objects[key(kind, name)] = object
}

// SetPods replaces the pods returned by ListPods.
func (c *Channel) SetPods(pods []job.PodFact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Pods = pods
}

// SetListErr makes the following ListPods calls fail with err.
func (c *Channel) SetListErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ListErr = err
}

// Object returns a stored object.
func (c *Channel) Object(kind job.Kind, name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[key(kind, name)]

	return obj, ok
}

func (c *Channel) Apply(_ context.Context, document []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ApplyErr != nil {
		return c.ApplyErr
	}

	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(document), 4096)

	for {
		var obj unstructured.Unstructured

		err := decoder.Decode(&obj.Object)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("decode document: %w", err)
		}

		if len(obj.Object) == 0 {
			continue
		}

		kind := job.Kind(strings.ToLower(obj.GetKind()))

		raw, err := obj.MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshal object: %w", err)
		}

		c.objects[key(kind, obj.GetName())] = raw
		c.record("apply " + key(kind, obj.GetName()))
	}
}

func (c *Channel) Delete(_ context.Context, kind job.Kind, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("delete " + key(kind, name))

	if c.DeleteErr != nil {
		return c.DeleteErr
	}

	delete(c.objects, key(kind, name))

	return nil
}

func (c *Channel) Exists(_ context.Context, kind job.Kind, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("exists " + key(kind, name))

	_, ok := c.objects[key(kind, name)]

	return ok, nil
}

func (c *Channel) Get(_ context.Context, kind job.Kind, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[key(kind, name)]
	if !ok {
		return nil, &job.NotFoundError{Kind: kind, Name: name}
	}

	return obj, nil
}

func (c *Channel) Execute(_ context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("execute " + command)

	return "", nil
}

func (c *Channel) ListPods(_ context.Context, selector string) ([]job.PodFact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("list pods " + selector)

	if c.ListErr != nil {
		return nil, c.ListErr
	}

	return append([]job.PodFact(nil), c.Pods...), nil
}

func (c *Channel) Logs(_ context.Context, query job.LogQuery) (string, error) {
	c.mu.Lock()
	logsFunc := c.LogsFunc
	c.mu.Unlock()

	if logsFunc == nil {
		return "", nil
	}

	return logsFunc(query)
}

func (c *Channel) StreamLogs(ctx context.Context, pod, container string, _ int) (io.ReadCloser, error) {
	c.mu.Lock()
	streamFunc := c.StreamFunc
	c.mu.Unlock()

	if streamFunc == nil {
		return nil, job.ErrUnsupported
	}

	return streamFunc(ctx, pod, container)
}

func (c *Channel) Namespace() string {
	return c.namespace
}

func (c *Channel) Transport() job.Transport {
	return c.transport
}

func (c *Channel) Ping(context.Context) error {
	return nil
}
