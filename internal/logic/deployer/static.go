package deployer

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

var ErrUnknownFamily = errors.New("family has no subject token")

// StaticTokens resolves family tokens from a fixed table. Jobs deployed
// without a family get an empty token.
type StaticTokens map[string]string

var _ FamilyTokens = StaticTokens(nil)

func (t StaticTokens) TokenForFamily(_ context.Context, family string) (string, error) {
	if family == "" {
		return "", nil
	}

	token, ok := t[family]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}

	return token, nil
}

// StaticEnvHook contributes the same env vars to every job.
type StaticEnvHook struct {
	name string
	env  map[string]string
}

var _ EnvHook = (*StaticEnvHook)(nil)

func NewStaticEnvHook(name string, env map[string]string) *StaticEnvHook {
	return &StaticEnvHook{name: name, env: maps.Clone(env)}
}

func (h *StaticEnvHook) Name() string {
	return h.name
}

func (h *StaticEnvHook) JobRuntimeEnv(context.Context, job.Manifest) (map[string]string, error) {
	return maps.Clone(h.env), nil
}
