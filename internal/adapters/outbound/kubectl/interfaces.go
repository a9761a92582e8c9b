package kubectl

import "context"

// CommandRunner runs a shell command and returns its standard output. A
// non-zero exit is reported as a *job.CommandError.
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, error)
}
