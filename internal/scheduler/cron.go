package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Stencil/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей, плюс @daily и т.п.).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextDue вычисляет следующее время срабатывания после from (UTC).
func NextDue(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return schedule.Next(from).UTC(), nil
}

// ValidateCron проверяет cron-выражение.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return nil
}

// ValidateTriggers проверяет cron-выражения всех триггеров flow.
func ValidateTriggers(f *domain.Flow) error {
	var errs []error
	for _, tr := range f.Triggers {
		if tr.Type != domain.TriggerTypeSchedule {
			continue
		}
		if err := ValidateCron(tr.Cron); err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", tr.ID, err))
		}
	}
	return errors.Join(errs...)
}
