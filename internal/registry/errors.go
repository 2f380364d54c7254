package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTemplate — шаблон с таким ключом уже сохранён.
	ErrDuplicateTemplate = errors.New("duplicate template")

	// ErrTemplateNotFound — шаблон не найден.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrFlowNotFound — flow не найден.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrInvalidTemplate — шаблон без id или namespace.
	ErrInvalidTemplate = errors.New("invalid template")
)

// DuplicateTemplateError — попытка повторно сохранить шаблон.
type DuplicateTemplateError struct {
	Namespace string
	ID        string
}

func (e *DuplicateTemplateError) Error() string {
	return fmt.Sprintf("Flow template '%s.%s' already exists", e.Namespace, e.ID)
}

func (e *DuplicateTemplateError) Unwrap() error {
	return ErrDuplicateTemplate
}

// TemplateNotFoundError — шаблон (namespace, id) отсутствует в registry.
//
// Текст ошибки попадает в ERROR-лог execution без изменений.
type TemplateNotFoundError struct {
	Namespace string
	ID        string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("Can't find flow template '%s.%s'", e.Namespace, e.ID)
}

func (e *TemplateNotFoundError) Unwrap() error {
	return ErrTemplateNotFound
}

// FlowNotFoundError — flow (namespace, id) отсутствует.
type FlowNotFoundError struct {
	Namespace string
	ID        string
}

func (e *FlowNotFoundError) Error() string {
	return fmt.Sprintf("Can't find flow '%s.%s'", e.Namespace, e.ID)
}

func (e *FlowNotFoundError) Unwrap() error {
	return ErrFlowNotFound
}
