package tasks

import (
	"context"
	"fmt"
	"time"
)

const (
	// TaskTypeDelay — тип задачи задержки.
	TaskTypeDelay = "delay"

	// Ключи параметров delay.
	paramDuration    = "duration"
	paramDurationSec = "duration_sec"
	paramDurationMs  = "duration_ms"
)

// DelayTask — задача задержки.
//
// Приостанавливает выполнение на указанное время.
// Отмена через context (kill) прерывает ожидание.
//
// Параметры (одно из):
//
//	{"duration": "1m30s"}
//	{"duration_sec": 10}
//	{"duration_ms": 5000}
type DelayTask struct{}

// NewDelayTask создаёт новый DelayTask.
func NewDelayTask() *DelayTask {
	return &DelayTask{}
}

// Type возвращает тип задачи.
func (t *DelayTask) Type() string {
	return TaskTypeDelay
}

// Execute выполняет задержку.
func (t *DelayTask) Execute(ctx context.Context, req *Request) (*Response, error) {
	duration, err := parseDuration(req.Params)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, cancelled(ctx)
	case <-timer.C:
		return NewResponse(map[string]any{
			"duration_ms": duration.Milliseconds(),
		}), nil
	}
}

// parseDuration извлекает длительность из параметров.
func parseDuration(params map[string]any) (time.Duration, error) {
	if s := GetParamString(params, paramDuration); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("%w: %s: invalid duration %q", ErrInvalidParams, TaskTypeDelay, s)
		}
		return d, nil
	}

	if sec := GetParamInt(params, paramDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	if ms := GetParamInt(params, paramDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: duration, duration_sec or duration_ms required",
		ErrInvalidParams, TaskTypeDelay)
}
