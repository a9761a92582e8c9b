package k8s

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

const (
	podListPageSize   = 100
	yamlDecoderBuffer = 4096
)

var kindResources = map[job.Kind]schema.GroupVersionResource{
	job.KindDeployment:     {Group: "apps", Version: "v1", Resource: "deployments"},
	job.KindService:        {Version: "v1", Resource: "services"},
	job.KindSecret:         {Version: "v1", Resource: "secrets"},
	job.KindServiceMonitor: {Group: "monitoring.coreos.com", Version: "v1", Resource: "servicemonitors"},
}

// Adapter is a job.Channel talking to the Kubernetes API with client-go.
type Adapter struct {
	logger           *slog.Logger
	clientset        kubernetes.Interface
	dynamicClient    dynamic.Interface
	metricsClientset metricsv.Interface
	namespace        string
}

// New creates a direct channel for one namespace. metricsClientset may be nil
// when the cluster has no metrics API.
func New(
	logger *slog.Logger,
	clientset kubernetes.Interface,
	dynamicClient dynamic.Interface,
	metricsClientset metricsv.Interface,
	namespace string,
) *Adapter {
	return &Adapter{
		logger:           logger.With("component", "k8s-channel", "namespace", namespace),
		clientset:        clientset,
		dynamicClient:    dynamicClient,
		metricsClientset: metricsClientset,
		namespace:        namespace,
	}
}

var (
	_ job.Channel     = (*Adapter)(nil)
	_ job.LogStreamer = (*Adapter)(nil)
	_ job.UsageReader = (*Adapter)(nil)
)

func (a *Adapter) Namespace() string {
	return a.namespace
}

func (a *Adapter) Transport() job.Transport {
	return job.TransportDirect
}

// Apply creates every object of the document, or updates it in place when it already exists.
// Each object goes through the unstructured JSON scheme so integer fields stay int64.
func (a *Adapter) Apply(ctx context.Context, document []byte) error {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(document), yamlDecoderBuffer)

	for {
		var raw runtime.RawExtension

		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("decode document: %w", err)
		}

		if len(bytes.TrimSpace(raw.Raw)) == 0 {
			continue
		}

		obj := &unstructured.Unstructured{}
		if err := obj.UnmarshalJSON(raw.Raw); err != nil {
			return fmt.Errorf("decode object: %w", err)
		}

		if err := a.applyObject(ctx, obj); err != nil {
			return err
		}
	}
}

func (a *Adapter) applyObject(ctx context.Context, obj *unstructured.Unstructured) error {
	gvr, _ := meta.UnsafeGuessKindToResource(obj.GroupVersionKind())

	namespace := obj.GetNamespace()
	if namespace == "" {
		namespace = a.namespace
		obj.SetNamespace(namespace)
	}

	client := a.dynamicClient.Resource(gvr).Namespace(namespace)
	ref := strings.ToLower(obj.GetKind()) + "/" + obj.GetName()

	existing, err := client.Get(ctx, obj.GetName(), metav1.GetOptions{})

	switch {
	case apierrors.IsNotFound(err):
		if _, err := client.Create(ctx, obj, metav1.CreateOptions{}); err != nil {
			return apiError("create "+ref, err)
		}

		a.logger.DebugContext(ctx, "created object", "object", ref)
	case err != nil:
		return apiError("get "+ref, err)
	default:
		obj.SetResourceVersion(existing.GetResourceVersion())

		if _, err := client.Update(ctx, obj, metav1.UpdateOptions{}); err != nil {
			return apiError("update "+ref, err)
		}

		a.logger.DebugContext(ctx, "updated object", "object", ref)
	}

	return nil
}

func (a *Adapter) resource(kind job.Kind) (dynamic.ResourceInterface, error) {
	gvr, ok := kindResources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: kind %q", job.ErrUnsupported, kind)
	}

	return a.dynamicClient.Resource(gvr).Namespace(a.namespace), nil
}

func (a *Adapter) Delete(ctx context.Context, kind job.Kind, name string) error {
	client, err := a.resource(kind)
	if err != nil {
		return err
	}

	err = client.Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		a.logger.WarnContext(ctx, "object to delete was not found", "kind", kind, "name", name)

		return nil
	}

	if err != nil {
		return apiError(fmt.Sprintf("delete %s/%s", kind, name), err)
	}

	return nil
}

func (a *Adapter) Exists(ctx context.Context, kind job.Kind, name string) (bool, error) {
	_, err := a.Get(ctx, kind, name)
	if job.IsNotFound(err) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func (a *Adapter) Get(ctx context.Context, kind job.Kind, name string) ([]byte, error) {
	client, err := a.resource(kind)
	if err != nil {
		return nil, err
	}

	obj, err := client.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, &job.NotFoundError{Kind: kind, Name: name}
	}

	if err != nil {
		return nil, apiError(fmt.Sprintf("get %s/%s", kind, name), err)
	}

	raw, err := obj.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal %s/%s: %w", kind, name, err)
	}

	return raw, nil
}

// Execute is not available on the direct transport.
func (a *Adapter) Execute(context.Context, string) (string, error) {
	return "", fmt.Errorf("execute raw command: %w", job.ErrUnsupported)
}

func (a *Adapter) ListPods(ctx context.Context, selector string) ([]job.PodFact, error) {
	var pods []job.PodFact

	opts := metav1.ListOptions{
		LabelSelector: selector,
		Limit:         podListPageSize,
	}

	for {
		podList, err := a.clientset.CoreV1().Pods(a.namespace).List(ctx, opts)
		if err != nil {
			return nil, apiError("list pods "+selector, err)
		}

		for i := range podList.Items {
			pod := &podList.Items[i]
			if pod.DeletionTimestamp != nil {
				continue
			}

			pods = append(pods, ToPodFact(pod))
		}

		if podList.Continue == "" {
			return pods, nil
		}

		opts.Continue = podList.Continue
	}
}

// Logs returns the logs of every pod matching the query, one pod after another.
// An empty container selects all containers of each pod.
func (a *Adapter) Logs(ctx context.Context, query job.LogQuery) (string, error) {
	pods, err := a.ListPods(ctx, query.Selector)
	if err != nil {
		return "", err
	}

	var out strings.Builder

	for _, pod := range pods {
		containers := pod.Containers
		if query.Container != "" && !query.AllContainers {
			containers = []string{query.Container}
		}

		for _, container := range containers {
			raw, err := a.clientset.CoreV1().Pods(a.namespace).
				GetLogs(pod.PodName, podLogOptions(container, query.Tail, query.Since, false)).
				DoRaw(ctx)
			if err != nil {
				return "", apiError(fmt.Sprintf("logs %s/%s", pod.PodName, container), err)
			}

			out.Write(raw)

			if len(raw) > 0 && raw[len(raw)-1] != '\n' {
				out.WriteByte('\n')
			}
		}
	}

	return out.String(), nil
}

// StreamLogs follows the log of one container until ctx is done or the container stops.
func (a *Adapter) StreamLogs(ctx context.Context, pod, container string, tail int) (io.ReadCloser, error) {
	stream, err := a.clientset.CoreV1().Pods(a.namespace).
		GetLogs(pod, podLogOptions(container, tail, time.Time{}, true)).
		Stream(ctx)
	if err != nil {
		return nil, apiError(fmt.Sprintf("follow logs %s/%s", pod, container), err)
	}

	return stream, nil
}

// PodMemoryUsage sums the memory usage reported by the metrics API for the given pods.
// Pods without metrics yet are skipped.
func (a *Adapter) PodMemoryUsage(ctx context.Context, pods []string) (*resource.Quantity, error) {
	if a.metricsClientset == nil {
		return nil, fmt.Errorf("read pod metrics: %w", job.ErrUnsupported)
	}

	total := resource.NewQuantity(0, resource.BinarySI)
	found := false

	for _, name := range pods {
		podMetrics, err := a.metricsClientset.MetricsV1beta1().PodMetricses(a.namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			continue
		}

		if err != nil {
			return nil, apiError("get pod metrics "+name, err)
		}

		total.Add(*sumMemoryUsage(ctx, a.logger, podMetrics))

		found = true
	}

	if !found {
		return nil, &job.NotFoundError{Kind: "podmetrics", Name: strings.Join(pods, ",")}
	}

	return total, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.clientset.CoreV1().Namespaces().Get(ctx, a.namespace, metav1.GetOptions{}); err != nil {
		return apiError("get namespace "+a.namespace, err)
	}

	return nil
}

func podLogOptions(container string, tail int, since time.Time, follow bool) *corev1.PodLogOptions {
	opts := &corev1.PodLogOptions{
		Container: container,
		Follow:    follow,
	}

	if tail >= 0 {
		tailLines := int64(tail)
		opts.TailLines = &tailLines
	}

	if !since.IsZero() {
		sinceTime := metav1.NewTime(since)
		opts.SinceTime = &sinceTime
	}

	return opts
}
