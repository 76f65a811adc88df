package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue implements Queue using in-memory channels
type MemoryQueue struct {
	items  chan interface{}
	mu     sync.RWMutex
	closed bool
	config *Config
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(config *Config) *MemoryQueue {
	if config == nil {
		config = DefaultConfig("memory")
	}

	return &MemoryQueue{
		items:  make(chan interface{}, config.BatchSize*10), // Buffer for 10 batches
		config: config,
	}
}

// Enqueue adds an item to the queue
func (q *MemoryQueue) Enqueue(ctx context.Context, item interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue retrieves items from the queue
func (q *MemoryQueue) Dequeue(ctx context.Context, maxItems int) ([]interface{}, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var items []interface{}

	// Block until we get at least one item
	select {
	case item := <-q.items:
		items = append(items, item)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Try to get more items without blocking
	for len(items) < maxItems {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items, nil
		}
	}

	return items, nil
}

// DequeueWithTimeout retrieves items with a timeout
func (q *MemoryQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var items []interface{}
	deadline := time.After(timeout)

	// Try to get first item with timeout
	select {
	case item := <-q.items:
		items = append(items, item)
	case <-deadline:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Try to get more items without blocking
	for len(items) < maxItems {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items, nil
		}
	}

	return items, nil
}

// Length returns the current queue length
func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return 0, ErrQueueClosed
	}

	return len(q.items), nil
}

// Close shuts down the queue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.items)
	return nil
}
