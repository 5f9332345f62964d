package syncqueue

import "errors"

var (
	ErrItemNotFound  = errors.New("syncqueue: item not found")
	ErrEmptySession  = errors.New("syncqueue: session id is required")
	ErrQueueClosed   = errors.New("syncqueue: queue is closed")
)
