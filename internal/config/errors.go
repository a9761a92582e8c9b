package config

import "errors"

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrDurationTooLow  = errors.New("duration below minimum")
	ErrInvalidTarget   = errors.New("invalid infrastructure target")
	ErrNoTargets       = errors.New("no infrastructure targets configured")
	ErrInvalidQuantity = errors.New("invalid resource quantity")
)
