package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DailyMidnight fires at 00:00 in the schedule's location.
const DailyMidnight = "@midnight"

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse accepts standard five-field expressions, an optional seconds field, and
// descriptors such as @daily or @every 10m.
func Parse(expr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// Boundary yields the next instant at which a periodic window rolls over.
type Boundary struct {
	Expression string
	schedule   cron.Schedule
}

func NewBoundary(expr string) (*Boundary, error) {
	if expr == "" {
		expr = DailyMidnight
	}
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Boundary{Expression: expr, schedule: schedule}, nil
}

// Next returns the first boundary strictly after ref, in ref's location.
func (b *Boundary) Next(ref time.Time) time.Time {
	return b.schedule.Next(ref)
}

type TriggerInfo struct {
	Next          time.Time
	Expression    string
	TimeUntilNext time.Duration
}

func GetTriggerInfo(expr string, refTime time.Time) (*TriggerInfo, error) {
	b, err := NewBoundary(expr)
	if err != nil {
		return nil, err
	}
	next := b.Next(refTime)
	return &TriggerInfo{
		Expression:    b.Expression,
		Next:          next,
		TimeUntilNext: next.Sub(refTime),
	}, nil
}
