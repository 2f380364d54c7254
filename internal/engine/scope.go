package engine

import (
	"strconv"
)

// ParentKey — зарезервированный первый сегмент пути: переход в
// охватывающий scope.
const ParentKey = "parent"

// Scope — вложенный контекст переменных для вычисления выражений.
//
// Поиск пути начинается с самого внутреннего scope и идёт наружу по
// ссылкам parent, пока путь не разрешится целиком:
//
//	task scope → include scope (outputs.args) → ... → execution scope
//
// Путь, начинающийся с "parent", сразу переходит в охватывающий scope.
type Scope struct {
	vars   map[string]any
	parent *Scope
}

// NewScope создаёт scope с переменными vars поверх parent (может быть nil).
func NewScope(vars map[string]any, parent *Scope) *Scope {
	if vars == nil {
		vars = make(map[string]any)
	}
	return &Scope{vars: vars, parent: parent}
}

// Parent возвращает охватывающий scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Vars возвращает переменные этого уровня.
func (s *Scope) Vars() map[string]any {
	return s.vars
}

// Lookup разрешает путь. Ошибка — *UnresolvedBindingError.
func (s *Scope) Lookup(path Path) (any, error) {
	if v, ok := s.lookup(path.Segments); ok {
		return v, nil
	}
	return nil, &UnresolvedBindingError{Path: path.Raw}
}

func (s *Scope) lookup(segments []Segment) (any, bool) {
	if s == nil || len(segments) == 0 {
		return nil, false
	}

	first := segments[0]
	if !first.IsIndex && first.Key == ParentKey {
		if _, shadowed := s.vars[ParentKey]; !shadowed {
			return s.parent.lookup(segments[1:])
		}
	}

	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := walk(sc.vars, segments); ok {
			return v, true
		}
	}
	return nil, false
}

// walk спускается по сегментам внутри одного значения.
func walk(root any, segments []Segment) (any, bool) {
	cur := root
	for _, seg := range segments {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(v any, seg Segment) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		item, ok := val[key]
		return item, ok

	case map[string]string:
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		item, ok := val[key]
		return item, ok

	case []any:
		if !seg.IsIndex || seg.Index >= len(val) {
			return nil, false
		}
		return val[seg.Index], true

	case []string:
		if !seg.IsIndex || seg.Index >= len(val) {
			return nil, false
		}
		return val[seg.Index], true

	default:
		return nil, false
	}
}
