package tasks

import (
	"context"
	"encoding/json"
)

const (
	// TaskTypeTransform — тип задачи трансформации.
	TaskTypeTransform = "transform"

	paramMappings = "mappings"
)

// TransformTask публикует набор именованных значений как outputs.
//
// Выражения в mappings уже вычислены runner'ом; строки, похожие на
// JSON, разбираются в значения.
//
//	{
//	    "mappings": {
//	        "user": "{{ outputs.fetch.body.user }}",
//	        "total": "{{ outputs.count.value }}"
//	    }
//	}
//
// Outputs: ключи mappings.
type TransformTask struct{}

// NewTransformTask создаёт новый TransformTask.
func NewTransformTask() *TransformTask {
	return &TransformTask{}
}

// Type возвращает тип задачи.
func (t *TransformTask) Type() string {
	return TaskTypeTransform
}

// Execute возвращает mappings как outputs.
func (t *TransformTask) Execute(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, cancelled(ctx)
	default:
	}

	mappings, ok := req.Params[paramMappings].(map[string]any)
	if !ok || len(mappings) == 0 {
		return EmptyResponse(), nil
	}

	outputs := make(map[string]any, len(mappings))
	for key, val := range mappings {
		if s, ok := val.(string); ok {
			outputs[key] = parseValue(s)
			continue
		}
		outputs[key] = val
	}

	return NewResponse(outputs), nil
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	return value
}
