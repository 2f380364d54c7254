package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDocument — поле kind документа не flow и не template.
	ErrUnknownDocument = errors.New("unknown document kind")

	// ErrInvalidDocument — документ не удалось разобрать.
	ErrInvalidDocument = errors.New("invalid document")
)

// DocumentError — ошибка в конкретном документе файла.
type DocumentError struct {
	Source string
	Index  int
	Err    error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: document %d: %v", e.Source, e.Index, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}
