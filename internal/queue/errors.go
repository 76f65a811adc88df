package queue

import "errors"

// ErrQueueClosed is returned when operating on a closed queue
var ErrQueueClosed = errors.New("queue is closed")
