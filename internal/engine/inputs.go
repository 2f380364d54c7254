package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shaiso/Stencil/internal/domain"
)

// ResolveInputs проверяет и приводит входные параметры к объявленным типам.
//
//   - отсутствующий обязательный параметр без defaults → ErrMissingInput
//   - отсутствующий необязательный без defaults не попадает в результат
//   - значение, не приводимое к типу → ErrInvalidInput
//   - необъявленные параметры отбрасываются
func ResolveInputs(defs []domain.InputDef, given map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(defs))

	for _, def := range defs {
		raw, ok := given[def.Name]
		if !ok || raw == nil {
			if def.Defaults != nil {
				raw = domain.CloneValue(def.Defaults)
			} else if def.IsRequired() {
				return nil, &InputError{Name: def.Name, Message: "required input is missing", Err: ErrMissingInput}
			} else {
				continue
			}
		}

		value, err := coerceInput(def.Type, raw)
		if err != nil {
			return nil, &InputError{Name: def.Name, Message: err.Error(), Err: ErrInvalidInput}
		}
		result[def.Name] = value
	}

	return result, nil
}

func coerceInput(t domain.InputType, raw any) (any, error) {
	switch t {
	case "", domain.InputTypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return Stringify(raw), nil

	case domain.InputTypeInt:
		return toInt(raw)

	case domain.InputTypeFloat:
		return toFloat(raw)

	case domain.InputTypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", raw)

	case domain.InputTypeJSON:
		if s, ok := raw.(string); ok {
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, fmt.Errorf("invalid JSON: %v", err)
			}
			return v, nil
		}
		return raw, nil

	default:
		return nil, fmt.Errorf("unknown input type %s", t)
	}
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", raw)
}
