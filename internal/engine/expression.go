package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Segment — один шаг пути: ключ map или индекс slice.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path — разобранный путь выражения: inputs.a['b'][0].
type Path struct {
	Raw      string
	Segments []Segment
}

// String возвращает исходный текст пути.
func (p Path) String() string {
	return p.Raw
}

// Keys возвращает сегменты пути как строки (индексы — в десятичном виде).
func (p Path) Keys() []string {
	keys := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		if s.IsIndex {
			keys[i] = strconv.Itoa(s.Index)
		} else {
			keys[i] = s.Key
		}
	}
	return keys
}

// part — фрагмент текста: литерал или {{ path }}.
type part struct {
	literal string
	path    *Path
}

// parseText разбивает текст на литералы и выражения.
func parseText(text string) ([]part, error) {
	var parts []part
	rest := text
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			if rest != "" {
				parts = append(parts, part{literal: rest})
			}
			return parts, nil
		}
		if start > 0 {
			parts = append(parts, part{literal: rest[:start]})
		}

		body := rest[start+len(openDelim):]
		end := strings.Index(body, closeDelim)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated %q in %q", ErrExpressionSyntax, openDelim, text)
		}

		path, err := ParsePath(body[:end])
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{path: &path})
		rest = body[end+len(closeDelim):]
	}
}

// ParsePath разбирает путь вида a.b['c']["d"][0].
//
// Идентификатор: [A-Za-z_][A-Za-z0-9_-]*. Дефис разрешён, чтобы
// входные параметры вида with-string адресовались без кавычек.
// После точки идентификатор может начинаться с цифры (outputs.1-return).
func ParsePath(expr string) (Path, error) {
	raw := strings.TrimSpace(expr)
	p := Path{Raw: raw}
	if raw == "" {
		return p, fmt.Errorf("%w: empty expression", ErrExpressionSyntax)
	}

	i := 0
	ident, n := scanIdent(raw[i:], false)
	if n == 0 {
		return p, fmt.Errorf("%w: expected identifier at %q", ErrExpressionSyntax, raw)
	}
	p.Segments = append(p.Segments, Segment{Key: ident})
	i += n

	for i < len(raw) {
		switch raw[i] {
		case '.':
			ident, n := scanIdent(raw[i+1:], true)
			if n == 0 {
				return p, fmt.Errorf("%w: expected identifier after '.' in %q", ErrExpressionSyntax, raw)
			}
			p.Segments = append(p.Segments, Segment{Key: ident})
			i += 1 + n

		case '[':
			seg, n, err := scanBracket(raw[i:])
			if err != nil {
				return p, fmt.Errorf("%w: %v in %q", ErrExpressionSyntax, err, raw)
			}
			p.Segments = append(p.Segments, seg)
			i += n

		default:
			return p, fmt.Errorf("%w: unexpected %q in %q", ErrExpressionSyntax, raw[i], raw)
		}
	}

	return p, nil
}

func scanIdent(s string, leadingDigit bool) (string, int) {
	n := 0
	for n < len(s) {
		c := s[n]
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if n == 0 && !isLetter && !(leadingDigit && isDigit) {
			break
		}
		if !isLetter && !isDigit && c != '-' {
			break
		}
		n++
	}
	return s[:n], n
}

// scanBracket разбирает ['key'], ["key"] или [N]. s начинается с '['.
func scanBracket(s string) (Segment, int, error) {
	if len(s) < 3 {
		return Segment{}, 0, fmt.Errorf("unterminated '['")
	}

	if q := s[1]; q == '\'' || q == '"' {
		end := strings.IndexByte(s[2:], q)
		if end < 0 {
			return Segment{}, 0, fmt.Errorf("unterminated quoted key")
		}
		closeAt := 2 + end + 1
		if closeAt >= len(s) || s[closeAt] != ']' {
			return Segment{}, 0, fmt.Errorf("expected ']' after quoted key")
		}
		return Segment{Key: s[2 : 2+end]}, closeAt + 1, nil
	}

	end := strings.IndexByte(s, ']')
	if end < 0 {
		return Segment{}, 0, fmt.Errorf("unterminated '['")
	}
	idx, err := strconv.Atoi(s[1:end])
	if err != nil || idx < 0 {
		return Segment{}, 0, fmt.Errorf("invalid index %q", s[1:end])
	}
	return Segment{Index: idx, IsIndex: true}, end + 1, nil
}

// Evaluator вычисляет {{ path }} выражения относительно Scope.
//
// Результат зависит только от (text, scope).
type Evaluator struct{}

// NewEvaluator создаёт Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Resolve вычисляет выражения в text.
//
// Если text целиком состоит из одного {{ ... }} (пробелы по краям
// допустимы), возвращается типизированное значение. Иначе каждое
// значение приводится к строке и подставляется в текст.
//
//	"{{ inputs.count }}"        → 42
//	"count: {{ inputs.count }}" → "count: 42"
func (e *Evaluator) Resolve(text string, scope *Scope) (any, error) {
	if !strings.Contains(text, openDelim) {
		return text, nil
	}

	parts, err := parseText(text)
	if err != nil {
		return nil, err
	}

	if single := singlePath(parts); single != nil {
		return scope.Lookup(*single)
	}

	var sb strings.Builder
	for _, p := range parts {
		if p.path == nil {
			sb.WriteString(p.literal)
			continue
		}
		v, err := scope.Lookup(*p.path)
		if err != nil {
			return nil, err
		}
		sb.WriteString(Stringify(v))
	}
	return sb.String(), nil
}

// ResolveString вычисляет выражения и всегда возвращает строку.
func (e *Evaluator) ResolveString(text string, scope *Scope) (string, error) {
	v, err := e.Resolve(text, scope)
	if err != nil {
		return "", err
	}
	return Stringify(v), nil
}

// ResolveValue вычисляет произвольное значение.
// Рекурсивно обрабатывает map и slice.
func (e *Evaluator) ResolveValue(value any, scope *Scope) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return e.Resolve(v, scope)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := e.ResolveValue(val, scope)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := e.ResolveValue(val, scope)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	case map[string]string:
		result := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := e.Resolve(val, scope)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []string:
		result := make([]any, len(v))
		for i, val := range v {
			resolved, err := e.Resolve(val, scope)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	default:
		// int, float, bool возвращаем как есть
		return value, nil
	}
}

// ResolveParams вычисляет параметры задачи.
// Это обёртка над ResolveValue для map[string]any.
func (e *Evaluator) ResolveParams(params map[string]any, scope *Scope) (map[string]any, error) {
	if params == nil {
		return make(map[string]any), nil
	}

	resolved, err := e.ResolveValue(params, scope)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

func singlePath(parts []part) *Path {
	var found *Path
	for _, p := range parts {
		if p.path != nil {
			if found != nil {
				return nil
			}
			found = p.path
			continue
		}
		if strings.TrimSpace(p.literal) != "" {
			return nil
		}
	}
	return found
}

// Stringify приводит значение к строке для подстановки в текст.
// map и slice сериализуются в JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// References возвращает пути всех выражений в text.
func References(text string) ([]Path, error) {
	if !strings.Contains(text, openDelim) {
		return nil, nil
	}
	parts, err := parseText(text)
	if err != nil {
		return nil, err
	}
	var paths []Path
	for _, p := range parts {
		if p.path != nil {
			paths = append(paths, *p.path)
		}
	}
	return paths, nil
}

// ValueReferences рекурсивно собирает пути из всех строк значения.
func ValueReferences(value any) ([]Path, error) {
	var paths []Path
	var walk func(v any) error
	walk = func(v any) error {
		switch val := v.(type) {
		case string:
			refs, err := References(val)
			if err != nil {
				return err
			}
			paths = append(paths, refs...)
		case map[string]any:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		case []any:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		case map[string]string:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		case []string:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(value); err != nil {
		return nil, err
	}
	return paths, nil
}
