package k8s

import (
	"errors"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// apiError reports a failed API call as a command error carrying the HTTP status code.
func apiError(operation string, err error) error {
	cmdErr := &job.CommandError{Command: operation, ExitCode: 1, Err: err}

	var status apierrors.APIStatus
	if errors.As(err, &status) {
		cmdErr.ExitCode = int(status.Status().Code)
	}

	return cmdErr
}
