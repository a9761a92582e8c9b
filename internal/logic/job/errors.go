package job

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported is returned by a channel for operations its transport cannot perform.
	ErrUnsupported = errors.New("operation not supported by transport")

	// ErrInvalidLimits is wrapped by ConfigurationError when resource limits break an invariant.
	ErrInvalidLimits = errors.New("invalid resource limits")

	// ErrReservedEnv is wrapped by ConfigurationError when runtime env vars override reserved ones.
	ErrReservedEnv = errors.New("runtime env vars conflict with reserved names")
)

// ConfigurationError is raised before any cluster mutation when a deployment is misconfigured.
type ConfigurationError struct {
	Err    error
	Detail string
	Keys   []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Keys) > 0 {
		return fmt.Sprintf("%s: %s", e.Err, strings.Join(e.Keys, ", "))
	}

	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an expected cluster object that does not exist.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) IsNotFound() {}

// CommandError reports a failed cluster command or API call.
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed with exit code %d", e.Command, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	if out := strings.TrimSpace(e.Stdout); out != "" {
		msg += ": " + out
	}

	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// MonitorError is a per-job health or metrics failure recorded on the job during listing.
type MonitorError struct {
	Stage string
	Err   error
}

func (e *MonitorError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *MonitorError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is or wraps a not-found error of any origin.
func IsNotFound(err error) bool {
	var target interface{ IsNotFound() }

	return errors.As(err, &target)
}
