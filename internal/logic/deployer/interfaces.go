package deployer

import (
	"context"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// EnvHook contributes extra runtime env vars to every deployed job.
type EnvHook interface {
	Name() string
	JobRuntimeEnv(ctx context.Context, manifest job.Manifest) (map[string]string, error)
}

// FamilyTokens resolves the auth token of the subject bound to a job family.
type FamilyTokens interface {
	TokenForFamily(ctx context.Context, family string) (string, error)
}

// ImageResolver returns the image reference of a job container.
type ImageResolver interface {
	ImageReference(jobName, tag string, index int) (string, error)
}

type renderer interface {
	Render(name string, vars any) ([]byte, error)
}
