package tasks

import (
	"context"
)

// TaskTypeReturn — тип отладочной задачи, возвращающей значение.
const TaskTypeReturn = "return"

// ReturnTask возвращает параметр format (или value) как output value.
//
//	{"format": "{{ inputs.name }}"}  →  outputs: {"value": "..."}
type ReturnTask struct{}

// NewReturnTask создаёт ReturnTask.
func NewReturnTask() *ReturnTask {
	return &ReturnTask{}
}

// Type возвращает тип задачи.
func (t *ReturnTask) Type() string {
	return TaskTypeReturn
}

// Execute возвращает значение.
func (t *ReturnTask) Execute(ctx context.Context, req *Request) (*Response, error) {
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	value, ok := req.Params["format"]
	if !ok {
		value = req.Params["value"]
	}
	return NewResponse(map[string]any{"value": value}), nil
}
