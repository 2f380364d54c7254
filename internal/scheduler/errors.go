package scheduler

import "errors"

// ErrInvalidCron — cron-выражение триггера не разбирается.
var ErrInvalidCron = errors.New("invalid cron expression")
