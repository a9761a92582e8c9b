package images_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/jobadapter/internal/infra/images"
)

type referenceCase struct {
	name          string
	giveRegistry  string
	giveNamespace string
	giveJob       string
	giveTag       string
	giveIndex     int
	wantReference string
	wantErr       bool
}

func TestResolver_ImageReference(t *testing.T) {
	t.Parallel()

	tests := []referenceCase{
		{
			name:          "main container",
			giveRegistry:  "registry.example.com:5000",
			giveNamespace: "platform",
			giveJob:       "sentiment",
			giveTag:       "1.0.0",
			wantReference: "registry.example.com:5000/platform/job/sentiment:1.0.0-0",
		},
		{
			name:          "sidecar without namespace",
			giveRegistry:  "registry.example.com",
			giveJob:       "Sentiment",
			giveTag:       "abc123",
			giveIndex:     1,
			wantReference: "registry.example.com/job/sentiment:abc123-1",
		},
		{
			name:         "invalid tag",
			giveRegistry: "registry.example.com",
			giveJob:      "sentiment",
			giveTag:      "bad tag",
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver, err := images.New(tt.giveRegistry, tt.giveNamespace)
			require.NoError(t, err)

			got, err := resolver.ImageReference(tt.giveJob, tt.giveTag, tt.giveIndex)
			if tt.wantErr {
				require.ErrorIs(t, err, images.ErrInvalidImage)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantReference, got)
		})
	}
}
