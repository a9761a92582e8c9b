package httpserver

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/jobadapter/internal/logic/deployer"
	"github.com/skillcoder/jobadapter/internal/logic/job"
)

type errorResponse struct {
	Error string `json:"error"`
}

type targetResponse struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Namespace string `json:"namespace"`
}

type jobResponse struct {
	Name                 string     `json:"name"`
	Version              string     `json:"version"`
	Status               string     `json:"status"`
	CreateTime           time.Time  `json:"create_time"`
	UpdateTime           time.Time  `json:"update_time"`
	InternalAddress      string     `json:"internal_address"`
	ReplicaAddresses     []string   `json:"replica_addresses"`
	LastCallTime         *time.Time `json:"last_call_time,omitempty"`
	Error                string     `json:"error,omitempty"`
	ImageTag             string     `json:"image_tag,omitempty"`
	InfrastructureTarget string     `json:"infrastructure_target"`
	MemoryUsage          string     `json:"memory_usage,omitempty"`
}

func toJobResponse(rec job.Record) jobResponse {
	resp := jobResponse{
		Name:                 rec.Name,
		Version:              rec.Version,
		Status:               string(rec.Status),
		CreateTime:           rec.CreateTime,
		UpdateTime:           rec.UpdateTime,
		InternalAddress:      rec.InternalAddress,
		ReplicaAddresses:     rec.ReplicaAddresses,
		LastCallTime:         rec.LastCallTime,
		Error:                rec.Error,
		ImageTag:             rec.ImageTag,
		InfrastructureTarget: rec.InfrastructureTarget,
	}

	if resp.ReplicaAddresses == nil {
		resp.ReplicaAddresses = []string{}
	}

	if rec.MemoryUsage != nil {
		resp.MemoryUsage = rec.MemoryUsage.String()
	}

	return resp
}

type resourcesBody struct {
	MemoryMin string `json:"memory_min"`
	MemoryMax string `json:"memory_max"`
	CPUMin    string `json:"cpu_min"`
	CPUMax    string `json:"cpu_max"`
}

type manifestBody struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Owner     string            `json:"owner"`
	Resources *resourcesBody    `json:"resources"`
	Replicas  int               `json:"replicas"`
	Labels    map[string]string `json:"labels"`
}

type secretsBody struct {
	GitCredentials *job.Credentials  `json:"git_credentials"`
	BuildEnv       map[string]string `json:"secret_build_env"`
	RuntimeEnv     map[string]string `json:"secret_runtime_env"`
}

func toSecretsBody(secrets job.Secrets) secretsBody {
	return secretsBody{
		GitCredentials: secrets.GitCredentials,
		BuildEnv:       secrets.BuildEnv,
		RuntimeEnv:     secrets.RuntimeEnv,
	}
}

type existsResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Exists  bool   `json:"exists"`
}

func (b secretsBody) toSecrets() job.Secrets {
	return job.Secrets{
		GitCredentials: b.GitCredentials,
		BuildEnv:       b.BuildEnv,
		RuntimeEnv:     b.RuntimeEnv,
	}
}

type deployBody struct {
	Manifest       manifestBody      `json:"manifest"`
	Tag            string            `json:"tag"`
	RuntimeEnv     map[string]string `json:"runtime_env"`
	Family         string            `json:"family"`
	ContainerCount int               `json:"container_count"`
	Secrets        *secretsBody      `json:"secrets"`
	Wait           bool              `json:"wait"`
}

func (b deployBody) toRequest() (deployer.DeployRequest, error) {
	if err := deployer.ValidateLabels(b.Manifest.Labels); err != nil {
		return deployer.DeployRequest{}, fmt.Errorf("%w: manifest.labels: %w", ErrInvalidBody, err)
	}

	manifest := job.Manifest{
		Name:     b.Manifest.Name,
		Version:  b.Manifest.Version,
		Owner:    b.Manifest.Owner,
		Replicas: b.Manifest.Replicas,
		Labels:   b.Manifest.Labels,
	}

	if r := b.Manifest.Resources; r != nil {
		declared, err := parseResources(r)
		if err != nil {
			return deployer.DeployRequest{}, err
		}

		manifest.Resources = declared
	}

	return deployer.DeployRequest{
		Manifest:       manifest,
		Tag:            b.Tag,
		RuntimeEnv:     b.RuntimeEnv,
		Family:         b.Family,
		ContainerCount: b.ContainerCount,
	}, nil
}

func parseResources(r *resourcesBody) (*job.DeclaredResources, error) {
	declared := &job.DeclaredResources{}

	fields := []struct {
		name  string
		value string
		dst   **resource.Quantity
	}{
		{"memory_min", r.MemoryMin, &declared.MemoryMin},
		{"memory_max", r.MemoryMax, &declared.MemoryMax},
		{"cpu_min", r.CPUMin, &declared.CPUMin},
		{"cpu_max", r.CPUMax, &declared.CPUMax},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}

		q, err := resource.ParseQuantity(f.value)
		if err != nil {
			return nil, fmt.Errorf("%w: resources.%s %q: %w", ErrInvalidBody, f.name, f.value, err)
		}

		*f.dst = &q
	}

	return declared, nil
}
