package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

//go:generate mockery --name Prober --with-expecter --output mocks --outpkg mocks

// Prober talks HTTP to a running job.
type Prober interface {
	Health(ctx context.Context, url string, header http.Header) (job.Health, error)
	LastCallTime(ctx context.Context, url string, header http.Header) (*time.Time, error)
}
