package naming

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

const (
	// BasePort is the port of the first container of a job; sidecar k listens on BasePort+k.
	BasePort = 7000

	// maxNameLength is the DNS-1123 label limit applied to every cluster object name.
	maxNameLength = 63

	hashSuffixLength = 8
)

// ResourceName maps a job name and version to the cluster object name shared by
// its deployment, service, secret and pods.
//
// The readable part is "job-<name>-v-<version>" lowercased, with every run of
// characters outside [a-z0-9] collapsed into a single dash. When that encoding
// loses information or does not fit into a DNS label, a hash of the raw
// identity is appended so two identities never end up with the same name.
// A readable name never ends in something shaped like that hash.
func ResourceName(jobName, version string) string {
	raw := "job-" + jobName + "-v-" + version
	readable := sanitize(raw)

	// a dash-free version makes the "-v-" split unambiguous
	unambiguous := version != "" && !strings.Contains(version, "-") && !isHashSuffix(version)

	if unambiguous && readable == raw && len(readable) <= maxNameLength {
		return readable
	}

	suffix := identityHash(jobName, version)
	limit := maxNameLength - len(suffix) - 1

	if len(readable) > limit {
		readable = strings.TrimRight(readable[:limit], "-")
	}

	return readable + "-" + suffix
}

// ContainerName returns the container name for the given container index.
func ContainerName(resourceName string, index int) string {
	if index == 0 {
		return resourceName
	}

	return resourceName + "-" + strconv.Itoa(index)
}

// ContainerPort returns the port the container with the given index listens on.
func ContainerPort(index int) int {
	return BasePort + index
}

// InternalAddress is the in-cluster address of the job service.
func InternalAddress(resourceName, namespace string) string {
	return fmt.Sprintf("%s.%s.svc:%d", resourceName, namespace, BasePort)
}

// ReplicaAddress is the in-cluster address of a single pod backing the job.
func ReplicaAddress(podIP, resourceName, namespace string) string {
	return fmt.Sprintf("%s.%s.%s.svc:%d", strings.ReplaceAll(podIP, ".", "-"), resourceName, namespace, BasePort)
}

func sanitize(s string) string {
	var b strings.Builder

	b.Grow(len(s))

	lastDash := false

	for _, r := range strings.ToLower(s) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)

			lastDash = false

			continue
		}

		if !lastDash {
			b.WriteByte('-')

			lastDash = true
		}
	}

	return strings.Trim(b.String(), "-")
}

func isHashSuffix(s string) bool {
	if len(s) != hashSuffixLength {
		return false
	}

	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}

	return true
}

func identityHash(jobName, version string) string {
	h := fnv.New32a()
	// fnv never returns a write error
	_, _ = h.Write([]byte(jobName + "\x00" + version))

	return fmt.Sprintf("%0*x", hashSuffixLength, h.Sum32())
}
