package logstream

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const maxLineSize = 1 << 20

// watch follows every container of every job pod. Pods appearing later are
// picked up on the next discovery and streamed from their first line.
func (m *Manager) watch(
	ctx context.Context,
	logger *slog.Logger,
	s *session,
	resourceName string,
	tail int,
	onLine LineHandler,
) {
	var followers sync.WaitGroup
	defer followers.Wait()

	// a failed discovery ends the session, followers included
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	followed := make(map[string]struct{})

	discover := func(tail int) bool {
		pods, err := m.channel.ListPods(ctx, selector(resourceName))
		if err != nil {
			m.logFailure(ctx, logger, "failed to discover job pods", err)

			return false
		}

		for _, pod := range pods {
			if _, ok := followed[pod.PodName]; ok {
				continue
			}

			followed[pod.PodName] = struct{}{}

			containers := pod.Containers
			if len(containers) == 0 {
				containers = []string{resourceName}
			}

			for _, container := range containers {
				followers.Go(func() {
					m.follow(ctx, logger, s, pod.PodName, container, tail, onLine)
				})
			}
		}

		return true
	}

	if !discover(tail) {
		return
	}

	ticker := time.NewTicker(m.settings.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !discover(-1) {
				return
			}
		}
	}
}

func (m *Manager) follow(
	ctx context.Context,
	logger *slog.Logger,
	s *session,
	pod string,
	container string,
	tail int,
	onLine LineHandler,
) {
	logger = logger.With("pod", pod, "container", container)

	stream, err := m.streamer.StreamLogs(ctx, pod, container, tail)
	if err != nil {
		m.logFailure(ctx, logger, "failed to follow pod logs", err)

		return
	}

	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})

	defer func() {
		if stop() {
			_ = stream.Close()
		}
	}()

	if err := scanLines(ctx, s, stream, onLine); err != nil {
		m.logFailure(ctx, logger, "pod log stream broke", err)

		return
	}

	logger.DebugContext(ctx, "pod log stream ended")
}

func scanLines(ctx context.Context, s *session, r io.Reader, onLine LineHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if !push(ctx, s, onLine, scanner.Text()) {
			return nil
		}
	}

	return scanner.Err()
}
