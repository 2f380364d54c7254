package domain

import "errors"

// ErrInvalidTaskKind — дискриминатор TaskDef отсутствует, неизвестен
// или не соответствует заполненным полям.
var ErrInvalidTaskKind = errors.New("invalid task kind")
