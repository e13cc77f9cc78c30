package scheduler

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
)

// schedule computes the next fire time after a given instant, the single
// operation both fixed-interval and CRON tasks need.
type schedule interface {
	next(after time.Time) time.Time
}

type fixedInterval struct {
	step time.Duration
}

func (f fixedInterval) next(after time.Time) time.Time {
	return after.Add(f.step)
}

// monthlySchedule advances by calendar month rather than a fixed duration,
// since months vary in length.
type monthlySchedule struct{}

func (monthlySchedule) next(after time.Time) time.Time {
	return after.AddDate(0, 1, 0)
}

type cronSchedule struct {
	sched cron.Schedule
}

func (c cronSchedule) next(after time.Time) time.Time {
	return c.sched.Next(after)
}

// parseSchedule builds the schedule for a task's Interval/CronExpression,
// using robfig/cron/v3's standard five-field parser for CRON.
func parseSchedule(interval Interval, cronExpr string) (schedule, error) {
	switch interval {
	case IntervalMinute:
		return fixedInterval{step: time.Minute}, nil
	case IntervalHour:
		return fixedInterval{step: time.Hour}, nil
	case IntervalDaily:
		return fixedInterval{step: 24 * time.Hour}, nil
	case IntervalWeekly:
		return fixedInterval{step: 7 * 24 * time.Hour}, nil
	case IntervalMonthly:
		return monthlySchedule{}, nil
	case IntervalCron:
		parsed, err := cron.ParseStandard(cronExpr)
		if err != nil {
			return nil, apperrors.Scheduler("", err).WithDetail("cron_expression", cronExpr)
		}
		return cronSchedule{sched: parsed}, nil
	default:
		return nil, apperrors.Scheduler("", errors.New("unknown interval")).WithDetail("interval", string(interval))
	}
}
