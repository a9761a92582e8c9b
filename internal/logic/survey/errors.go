package survey

import "errors"

var (
	ErrNotReady    = errors.New("survey has not completed yet")
	ErrStaleSurvey = errors.New("last survey is too old")
)
