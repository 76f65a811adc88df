// Package queue buffers usage archive records between the request path
// and the archive worker, with two backends:
//
//  1. Memory queue (channel-based): no persistence, no external
//     dependencies; used in standalone deployments where the gateway runs
//     against the in-memory store.
//
//  2. Redis queue (list-based): survives restarts and supports several
//     gateway replicas feeding one archive worker.
//
// The queue carries observability data only. The usage ledger is written
// synchronously inside the admit commit and never passes through here,
// so a lost queue item can never lose accounting state.
package queue

import (
	"context"
	"time"
)

// Queue defines the interface for buffering archive records.
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item interface{}) error

	// Dequeue retrieves items from the queue (up to maxItems)
	// Blocks until at least one item is available or context is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)

	// DequeueWithTimeout retrieves items with a timeout
	// Returns items if available before timeout, empty slice otherwise
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// UseRedis indicates whether to use Redis or in-memory queue
	UseRedis bool

	// RedisAddr is the Redis server address (if UseRedis is true)
	RedisAddr string

	// RedisPassword is the Redis password (if UseRedis is true)
	RedisPassword string

	// RedisDB is the Redis database number (if UseRedis is true)
	RedisDB int

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		UseRedis:     false,
		QueueName:    queueName,
	}
}

// New creates a queue from config, choosing the backend by UseRedis.
func New(config *Config) (Queue, error) {
	if config != nil && config.UseRedis {
		return NewRedisQueue(config)
	}
	return NewMemoryQueue(config), nil
}
