package monitor

import "errors"

var (
	ErrConditionTimeout = errors.New("job did not become operational in time")
	ErrStaleDeployment  = errors.New("job reports an older deployment")
	ErrNotOperational   = errors.New("job is not operational")
)
