package cronparser

import (
	"fmt"
	"strings"
	"time"

	cron "github.com/netresearch/go-cron"
)

var _parser = cron.MustNewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is a parsed five field cron expression.
type Schedule struct {
	spec     string
	schedule cron.Schedule
}

// Parse parses spec. Without a CRON_TZ=/TZ= prefix the expression is evaluated in UTC.
func Parse(spec string) (*Schedule, error) {
	schedule, err := _parser.Parse(withTimezone(spec))
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	return &Schedule{spec: spec, schedule: schedule}, nil
}

// Next returns the next occurrence strictly after `after`.
func (s *Schedule) Next(after time.Time) time.Time {
	return s.schedule.Next(after)
}

func (s *Schedule) String() string {
	return s.spec
}

func withTimezone(spec string) string {
	if strings.HasPrefix(spec, "CRON_TZ=") || strings.HasPrefix(spec, "TZ=") {
		return spec
	}

	return "CRON_TZ=UTC " + spec
}
