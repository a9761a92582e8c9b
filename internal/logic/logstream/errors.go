package logstream

import "errors"

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidTarget    = errors.New("job name and version are required")
	ErrSessionExists    = errors.New("session already exists")
	ErrManagerClosed    = errors.New("log session manager is shut down")
)
