package survey

import (
	"context"
	"iter"
	"time"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// Lister lists the jobs of one infrastructure target.
type Lister interface {
	ListJobs(ctx context.Context) (iter.Seq[job.Record], error)
}

// Schedule yields the survey occurrences.
type Schedule interface {
	Next(after time.Time) time.Time
}
