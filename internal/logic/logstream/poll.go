package logstream

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// poll fetches the last tail lines of all job containers, then repeatedly
// fetches lines logged since the start of the previous fetch. Starting from the
// previous fetch rather than the current one may repeat a line but never drops one.
func (m *Manager) poll(
	ctx context.Context,
	logger *slog.Logger,
	s *session,
	resourceName string,
	tail int,
	onLine LineHandler,
) {
	query := job.LogQuery{
		Selector:      selector(resourceName),
		AllContainers: true,
		Tail:          tail,
	}

	since := m.now()

	if !m.fetch(ctx, logger, s, query, onLine) {
		return
	}

	ticker := time.NewTicker(m.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fetchedAt := m.now()

		query.Tail = -1
		query.Since = since

		if !m.fetch(ctx, logger, s, query, onLine) {
			return
		}

		since = fetchedAt
	}
}

func (m *Manager) fetch(
	ctx context.Context,
	logger *slog.Logger,
	s *session,
	query job.LogQuery,
	onLine LineHandler,
) bool {
	output, err := m.channel.Logs(ctx, query)
	if err != nil {
		m.logFailure(ctx, logger, "failed to fetch job logs", err)

		return false
	}

	for line := range strings.Lines(output) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if !push(ctx, s, onLine, line) {
			return false
		}
	}

	return true
}
