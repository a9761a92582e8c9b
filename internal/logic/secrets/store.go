package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"

	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/naming"
)

const templateName = "secret"

// TemplateVars are the variables the secret template is rendered with.
type TemplateVars struct {
	ResourceName     string
	JobName          string
	JobVersion       string
	Namespace        string
	ResourceLabel    string
	GitCredentials   string
	SecretBuildEnv   string
	SecretRuntimeEnv string
}

// Store keeps job secrets in one cluster Secret per job version.
type Store struct {
	logger   *slog.Logger
	channel  job.Channel
	renderer renderer
}

// New creates a secret store on top of the given channel.
func New(logger *slog.Logger, channel job.Channel, renderer renderer) *Store {
	return &Store{
		logger:   logger.With("component", "secrets"),
		channel:  channel,
		renderer: renderer,
	}
}

// Save creates or replaces the secrets of a job version.
func (s *Store) Save(ctx context.Context, id job.Identity, secrets job.Secrets) error {
	resourceName := naming.ResourceName(id.Name, id.Version)

	vars := TemplateVars{
		ResourceName:  resourceName,
		JobName:       id.Name,
		JobVersion:    id.Version,
		Namespace:     s.channel.Namespace(),
		ResourceLabel: job.ResourceLabel,
	}

	var err error

	if secrets.GitCredentials != nil {
		vars.GitCredentials, err = encode(secrets.GitCredentials)
		if err != nil {
			return fmt.Errorf("encode %s: %w", job.SecretKeyGitCredentials, err)
		}
	}

	if secrets.BuildEnv != nil {
		vars.SecretBuildEnv, err = encode(secrets.BuildEnv)
		if err != nil {
			return fmt.Errorf("encode %s: %w", job.SecretKeyBuildEnv, err)
		}
	}

	if secrets.RuntimeEnv != nil {
		vars.SecretRuntimeEnv, err = encode(secrets.RuntimeEnv)
		if err != nil {
			return fmt.Errorf("encode %s: %w", job.SecretKeyRuntimeEnv, err)
		}
	}

	document, err := s.renderer.Render(templateName, vars)
	if err != nil {
		return fmt.Errorf("render secret: %w", err)
	}

	if err := s.channel.Apply(ctx, document); err != nil {
		return fmt.Errorf("apply secret: %w", err)
	}

	s.logger.InfoContext(ctx, "job secrets saved", "job", id.String(), "resource", resourceName)

	return nil
}

// Load reads the secrets of a job version. It fails with *job.NotFoundError
// when the job has no secret object.
func (s *Store) Load(ctx context.Context, id job.Identity) (job.Secrets, error) {
	resourceName := naming.ResourceName(id.Name, id.Version)

	raw, err := s.channel.Get(ctx, job.KindSecret, resourceName)
	if err != nil {
		return job.Secrets{}, fmt.Errorf("get secret: %w", err)
	}

	var secret corev1.Secret
	if err := json.Unmarshal(raw, &secret); err != nil {
		return job.Secrets{}, fmt.Errorf("decode secret object: %w", err)
	}

	out := job.Secrets{
		BuildEnv:   map[string]string{},
		RuntimeEnv: map[string]string{},
	}

	if err := decode(secret.Data, job.SecretKeyBuildEnv, &out.BuildEnv); err != nil {
		return job.Secrets{}, err
	}

	if err := decode(secret.Data, job.SecretKeyRuntimeEnv, &out.RuntimeEnv); err != nil {
		return job.Secrets{}, err
	}

	var creds job.Credentials

	ok, err := decodeOptional(secret.Data, job.SecretKeyGitCredentials, &creds)
	if err != nil {
		return job.Secrets{}, err
	}

	if ok {
		out.GitCredentials = &creds
	}

	return out, nil
}

// encode turns a payload into the base64(JSON) form stored under a secret data key.
func encode(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// decode fills target from a data key; the API has already reversed the base64 layer.
func decode(data map[string][]byte, key string, target any) error {
	_, err := decodeOptional(data, key, target)

	return err
}

func decodeOptional(data map[string][]byte, key string, target any) (bool, error) {
	value := data[key]
	if len(value) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(value, target); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	return true, nil
}
