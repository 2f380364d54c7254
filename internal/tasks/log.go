package tasks

import (
	"context"
	"fmt"

	"github.com/shaiso/Stencil/internal/domain"
)

// TaskTypeLog — тип задачи логирования.
const TaskTypeLog = "log"

// LogTask пишет сообщение в лог execution.
//
// Параметры:
//
//	{
//	    "message": "{{ parent.outputs.args['my-forward'] }}",  // строка или список строк
//	    "level": "ERROR"                                       // TRACE..ERROR, по умолчанию INFO
//	}
//
// Outputs: нет.
type LogTask struct{}

// NewLogTask создаёт LogTask.
func NewLogTask() *LogTask {
	return &LogTask{}
}

// Type возвращает тип задачи.
func (t *LogTask) Type() string {
	return TaskTypeLog
}

// Execute публикует сообщения.
func (t *LogTask) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(ctx)
	}

	level := domain.LevelInfo
	if raw := GetParamString(req.Params, "level"); raw != "" {
		l, ok := domain.ParseLevel(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown level %q", ErrInvalidParams, TaskTypeLog, raw)
		}
		level = l
	}

	messages, err := logMessages(req.Params["message"])
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		req.Log(level, "%s", msg)
	}

	return EmptyResponse(), nil
}

func logMessages(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: %s: message is required", ErrInvalidParams, TaskTypeLog)
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	case []string:
		return v, nil
	default:
		return []string{fmt.Sprint(v)}, nil
	}
}
