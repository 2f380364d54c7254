package logbus

import "errors"

var (
	// ErrTimeout — AwaitMatch не дождался подходящей записи.
	ErrTimeout = errors.New("timed out waiting for log entry")

	// ErrClosed — шина закрыта.
	ErrClosed = errors.New("log bus closed")
)
