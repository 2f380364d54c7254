package tasks

import (
	"context"
	"fmt"
)

// TaskTypeFail — тип задачи, которая всегда завершается ошибкой.
const TaskTypeFail = "fail"

// FailTask завершается с ErrTaskFailed. Параметр message задаёт текст.
type FailTask struct{}

// NewFailTask создаёт FailTask.
func NewFailTask() *FailTask {
	return &FailTask{}
}

// Type возвращает тип задачи.
func (t *FailTask) Type() string {
	return TaskTypeFail
}

// Execute всегда возвращает ошибку.
func (t *FailTask) Execute(ctx context.Context, req *Request) (*Response, error) {
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	msg := GetParamString(req.Params, "message")
	if msg == "" {
		msg = "task " + req.TaskID + " failed"
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskFailed, msg)
}
