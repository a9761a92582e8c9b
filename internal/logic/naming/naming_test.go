package naming_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/jobadapter/internal/logic/naming"
)

var dnsLabel = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

type resourceNameCase struct {
	name        string
	giveJob     string
	giveVersion string
	wantExact   string
	wantPrefix  string
}

func TestResourceName(t *testing.T) {
	t.Parallel()

	tests := []resourceNameCase{
		{
			name:        "already safe identity is kept readable",
			giveJob:     "sentiment",
			giveVersion: "1",
			wantExact:   "job-sentiment-v-1",
		},
		{
			name:        "dotted version gets a hash suffix",
			giveJob:     "sentiment",
			giveVersion: "1.0.0",
			wantPrefix:  "job-sentiment-v-1-0-0-",
		},
		{
			name:        "upper case gets a hash suffix",
			giveJob:     "Sentiment",
			giveVersion: "2",
			wantPrefix:  "job-sentiment-v-2-",
		},
		{
			name:        "hash shaped version gets a hash suffix",
			giveJob:     "a-v",
			giveVersion: "2bb50948",
			wantPrefix:  "job-a-v-v-2bb50948-",
		},
		{
			name:        "long name is truncated",
			giveJob:     strings.Repeat("abcdefghij", 10),
			giveVersion: "0.1.0",
			wantPrefix:  "job-abcdefghij",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := naming.ResourceName(tt.giveJob, tt.giveVersion)

			require.LessOrEqual(t, len(got), 63)
			require.Regexp(t, dnsLabel, got)
			require.Equal(t, got, naming.ResourceName(tt.giveJob, tt.giveVersion), "must be deterministic")

			if tt.wantExact != "" {
				require.Equal(t, tt.wantExact, got)
			}

			if tt.wantPrefix != "" {
				require.True(t, strings.HasPrefix(got, tt.wantPrefix), "got %q", got)
			}
		})
	}
}

func TestResourceName_NoCollisions(t *testing.T) {
	t.Parallel()

	identities := [][2]string{
		{"sentiment", "1.0.0"},
		{"sentiment", "1-0-0"},
		{"sentiment", "1_0_0"},
		{"Sentiment", "1.0.0"},
		{"sentiment-v", "1.0.0"},
		{"sentiment", "v-1.0.0"},
		{"sentiment-v", "1"},
		{"sentiment", "v-1"},
		{strings.Repeat("x", 80), "1"},
		{strings.Repeat("x", 80), "2"},
		{"a", "v."},
		{"a-v", "2bb50948"},
		{"a-v", "deadbeef"},
		{"a", "v.deadbeef"},
	}

	seen := make(map[string][2]string, len(identities))

	for _, id := range identities {
		got := naming.ResourceName(id[0], id[1])

		prev, ok := seen[got]
		require.False(t, ok, "%v collides with %v as %q", id, prev, got)

		seen[got] = id
	}
}

func TestContainerName(t *testing.T) {
	t.Parallel()

	resource := naming.ResourceName("sentiment", "1.0.0")

	require.Equal(t, resource, naming.ContainerName(resource, 0))
	require.Equal(t, resource+"-1", naming.ContainerName(resource, 1))
	require.Equal(t, resource+"-12", naming.ContainerName(resource, 12))
	require.Equal(t, 7000, naming.ContainerPort(0))
	require.Equal(t, 7003, naming.ContainerPort(3))
}

func TestAddresses(t *testing.T) {
	t.Parallel()

	require.Equal(t, "job-a-v-1.jobs.svc:7000", naming.InternalAddress("job-a-v-1", "jobs"))
	require.Equal(t, "10-1-2-3.job-a-v-1.jobs.svc:7000", naming.ReplicaAddress("10.1.2.3", "job-a-v-1", "jobs"))
}
