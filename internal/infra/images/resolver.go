package images

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

const repositoryPrefix = "job"

var ErrInvalidImage = errors.New("invalid job image reference")

// Resolver composes the image references of job containers pushed by the image builder.
type Resolver struct {
	registry  string
	namespace string
}

// New creates a resolver for the given registry and registry namespace.
func New(registry, namespace string) (*Resolver, error) {
	if registry != "" {
		if _, err := name.NewRegistry(registry); err != nil {
			return nil, fmt.Errorf("%w: registry %q: %w", ErrInvalidImage, registry, err)
		}
	}

	return &Resolver{
		registry:  strings.TrimRight(registry, "/"),
		namespace: strings.Trim(namespace, "/"),
	}, nil
}

// ImageReference returns <registry>/<namespace>/job/<job name>:<tag>-<index>.
func (r *Resolver) ImageReference(jobName, tag string, index int) (string, error) {
	parts := make([]string, 0, 4)

	for _, part := range []string{r.registry, r.namespace, repositoryPrefix, strings.ToLower(jobName)} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	raw := fmt.Sprintf("%s:%s-%d", strings.Join(parts, "/"), tag, index)

	ref, err := name.NewTag(raw, name.WithDefaultRegistry(""))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidImage, raw, err)
	}

	return ref.String(), nil
}
