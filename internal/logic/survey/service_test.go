package survey_test

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/survey"
)

var errClusterDown = errors.New("cluster unreachable")

type fakeLister struct {
	records []job.Record
	err     error
}

func (f *fakeLister) ListJobs(context.Context) (iter.Seq[job.Record], error) {
	if f.err != nil {
		return nil, f.err
	}

	return slices.Values(f.records), nil
}

// everyMinute is a schedule firing on every minute boundary.
type everyMinute struct{}

func (everyMinute) Next(after time.Time) time.Time {
	return after.Truncate(time.Minute).Add(time.Minute)
}

func records(statuses ...job.Status) []job.Record {
	out := make([]job.Record, 0, len(statuses))
	for i, status := range statuses {
		out = append(out, job.Record{
			Identity: job.Identity{Name: "adder", Version: string(rune('a' + i))},
			Status:   status,
		})
	}

	return out
}

type surveyCase struct {
	name        string
	giveTargets map[string]survey.Lister
	want        map[string]survey.Counts
	wantErr     error
}

func TestService_SurveyCommand(t *testing.T) {
	t.Parallel()

	tests := []surveyCase{
		{
			name:        "no targets",
			giveTargets: map[string]survey.Lister{},
			want:        map[string]survey.Counts{},
		},
		{
			name: "counts per status",
			giveTargets: map[string]survey.Lister{
				"survey-local": &fakeLister{records: records(job.StatusRunning, job.StatusError, job.StatusRunning)},
				"survey-empty": &fakeLister{},
			},
			want: map[string]survey.Counts{
				"survey-local": {job.StatusRunning: 2, job.StatusError: 1},
				"survey-empty": {job.StatusRunning: 0, job.StatusError: 0},
			},
		},
		{
			name: "failing target does not stop others",
			giveTargets: map[string]survey.Lister{
				"survey-down": &fakeLister{err: errClusterDown},
				"survey-up":   &fakeLister{records: records(job.StatusRunning)},
			},
			want: map[string]survey.Counts{
				"survey-up": {job.StatusRunning: 1, job.StatusError: 0},
			},
			wantErr: errClusterDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := survey.New(slog.Default(), everyMinute{}, tt.giveTargets)

			got, err := svc.SurveyCommand(t.Context())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			require.Equal(t, tt.want, got)
			require.Equal(t, tt.want, svc.LastCounts())
		})
	}
}

func TestService_LastCountsKeepsPreviousOnFailure(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{records: records(job.StatusRunning)}
	svc := survey.New(slog.Default(), everyMinute{}, map[string]survey.Lister{"keep": lister})

	_, err := svc.SurveyCommand(t.Context())
	require.NoError(t, err)

	lister.err = errClusterDown

	_, err = svc.SurveyCommand(t.Context())
	require.ErrorIs(t, err, errClusterDown)
	require.Equal(t, survey.Counts{job.StatusRunning: 1, job.StatusError: 0}, svc.LastCounts()["keep"])
}

func TestService_Lifecycle(t *testing.T) {
	t.Parallel()

	svc := survey.New(slog.Default(), everyMinute{}, map[string]survey.Lister{
		"lifecycle": &fakeLister{records: records(job.StatusRunning)},
	})

	require.ErrorIs(t, svc.Ping(t.Context()), survey.ErrNotReady)
	require.False(t, svc.PingerCritical())

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, svc.Start(ctx))

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("survey did not complete")
	}

	require.NoError(t, svc.Ping(t.Context()))
	require.Contains(t, svc.LastCounts(), "lifecycle")

	cancel()
	require.NoError(t, svc.Shutdown(t.Context()))
}

func TestService_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	svc := survey.New(slog.Default(), everyMinute{}, nil)

	require.NoError(t, svc.Shutdown(t.Context()))
	require.NoError(t, svc.Start(t.Context()))
}

type blockingLister struct {
	entered chan struct{}
}

func (b *blockingLister) ListJobs(ctx context.Context) (iter.Seq[job.Record], error) {
	close(b.entered)
	<-ctx.Done()

	return nil, ctx.Err()
}

func TestService_ShutdownStopsRunningSurvey(t *testing.T) {
	t.Parallel()

	lister := &blockingLister{entered: make(chan struct{})}
	svc := survey.New(slog.Default(), everyMinute{}, map[string]survey.Lister{
		"hanging": lister,
	})

	require.NoError(t, svc.Start(t.Context()))

	select {
	case <-lister.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("survey did not start")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.Shutdown(ctx))
}

func TestService_ShutdownWhileWaitingForSchedule(t *testing.T) {
	t.Parallel()

	svc := survey.New(slog.Default(), everyMinute{}, map[string]survey.Lister{
		"idle": &fakeLister{records: records(job.StatusRunning)},
	})

	require.NoError(t, svc.Start(t.Context()))

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("survey did not complete")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.Shutdown(ctx))
}
