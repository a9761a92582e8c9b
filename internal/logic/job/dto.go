package job

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Status of a job as observed by the monitor.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusError   Status = "ERROR"
)

// Transport selects how a deployment environment is reached.
type Transport string

const (
	// TransportDirect talks to the Kubernetes API with client-go.
	TransportDirect Transport = "direct"

	// TransportKubectl runs textual kubectl commands, locally or through a remote gateway.
	TransportKubectl Transport = "kubectl"
)

// Identity is the logical coordinate of a job.
type Identity struct {
	Name    string
	Version string
}

func (i Identity) String() string {
	return i.Name + "@" + i.Version
}

// Kind is a cluster object kind the channel knows how to address.
type Kind string

const (
	KindDeployment     Kind = "deployment"
	KindService        Kind = "service"
	KindSecret         Kind = "secret"
	KindServiceMonitor Kind = "servicemonitor"
)

// ResourceLimits are the effective requests (min) and limits (max) of a job container.
type ResourceLimits struct {
	MemoryMin resource.Quantity
	MemoryMax resource.Quantity
	CPUMin    resource.Quantity
	CPUMax    resource.Quantity
}

// DeclaredResources are the optional resources a manifest asks for.
type DeclaredResources struct {
	MemoryMin *resource.Quantity
	MemoryMax *resource.Quantity
	CPUMin    *resource.Quantity
	CPUMax    *resource.Quantity
}

// Manifest is the subset of the validated job manifest the adapter needs.
type Manifest struct {
	Name      string
	Version   string
	Owner     string
	Resources *DeclaredResources
	Replicas  int
	Labels    map[string]string
}

// Identity returns the job coordinates described by the manifest.
func (m Manifest) Identity() Identity {
	return Identity{Name: m.Name, Version: m.Version}
}

// ContainerSpec describes one container of the job pod.
type ContainerSpec struct {
	Name  string
	Image string
	Port  int
}

// Credentials are the git credentials used to fetch the job sources.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Secrets are the per-version secrets of a job.
type Secrets struct {
	GitCredentials *Credentials
	BuildEnv       map[string]string
	RuntimeEnv     map[string]string
}

// Record is a job as seen by one deployment or reconciliation pass. It is never persisted.
type Record struct {
	Identity
	Status               Status
	CreateTime           time.Time
	UpdateTime           time.Time
	InternalAddress      string
	ReplicaAddresses     []string
	LastCallTime         *time.Time
	Error                string
	ImageTag             string
	InfrastructureTarget string
	MemoryUsage          *resource.Quantity
}

// PodFact is a raw fact about one alive pod scraped from cluster state.
type PodFact struct {
	PodName      string
	ResourceName string
	JobName      string
	JobVersion   string
	CreationTime time.Time
	Phase        string
	IP           string
	Containers   []string
}

// LogQuery selects log lines of the pods matching Selector.
// Tail < 0 means no tail limit. A zero Since means from the beginning.
type LogQuery struct {
	Selector      string
	Container     string
	AllContainers bool
	Tail          int
	Since         time.Time
}

// Health is what a job reports on its health endpoint.
type Health struct {
	Operational         bool
	DeploymentTimestamp int64
}
