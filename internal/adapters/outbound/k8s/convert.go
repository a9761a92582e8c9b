package k8s

import (
	"context"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// ToPodFact converts a pod to the facts the monitor works with.
func ToPodFact(pod *corev1.Pod) job.PodFact {
	containers := make([]string, 0, len(pod.Spec.Containers))
	for i := range pod.Spec.Containers {
		containers = append(containers, pod.Spec.Containers[i].Name)
	}

	return job.PodFact{
		PodName:      pod.Name,
		ResourceName: pod.Labels[job.ResourceLabel],
		JobName:      pod.Labels[job.NameLabel],
		JobVersion:   pod.Labels[job.VersionLabel],
		CreationTime: pod.CreationTimestamp.Time,
		Phase:        string(pod.Status.Phase),
		IP:           pod.Status.PodIP,
		Containers:   containers,
	}
}

func sumMemoryUsage(
	ctx context.Context,
	logger *slog.Logger,
	podMetrics *metricsv1beta1.PodMetrics,
) *resource.Quantity {
	memoryUsage := resource.NewQuantity(0, resource.BinarySI)

	for i := range podMetrics.Containers {
		containerMemoryUsage := podMetrics.Containers[i].Usage.Memory()
		if containerMemoryUsage == nil {
			logger.WarnContext(ctx, "container memory usage is nil, skipping",
				"pod", podMetrics.Name,
				"container", podMetrics.Containers[i].Name,
			)

			continue
		}

		memoryUsage.Add(*containerMemoryUsage)
	}

	return memoryUsage
}
