package httpserver

import "errors"

var (
	ErrInvalidBody    = errors.New("invalid request body")
	ErrUnknownTarget  = errors.New("unknown infrastructure target")
	ErrInvalidTail    = errors.New("tail must be a non-negative integer")
	ErrNotStreamable  = errors.New("response writer does not support streaming")
	ErrServerNotReady = errors.New("server is not ready")
)
