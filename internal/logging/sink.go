package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"aigate/internal/queue"
	"aigate/internal/utils"
)

// RecordWriter persists a batch of archive records and returns an
// identifier for the written batch (an S3 key or a file path).
type RecordWriter interface {
	WriteBatch(ctx context.Context, records []*ArchiveRecord) (string, error)
}

// ArchiveSinkConfig holds archive sink configuration.
type ArchiveSinkConfig struct {
	// FlushSize is the batch size that triggers an immediate flush.
	FlushSize int

	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration
}

// DefaultArchiveSinkConfig returns the production defaults.
func DefaultArchiveSinkConfig() ArchiveSinkConfig {
	return ArchiveSinkConfig{
		FlushSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// ArchiveSink buffers records through a queue and flushes them in
// batches to a RecordWriter from a background worker. With a Redis
// queue the buffer survives restarts; with the memory queue records are
// lost on crash, which is acceptable for archive data.
type ArchiveSink struct {
	queue         queue.Queue
	writer        RecordWriter
	flushSize     int
	flushInterval time.Duration
	logger        *utils.Logger

	wg          sync.WaitGroup
	runCancel   context.CancelFunc
	stopChan    chan struct{}
	stoppedChan chan struct{}
	stopOnce    sync.Once
}

// NewArchiveSink creates a sink and starts its background worker.
func NewArchiveSink(q queue.Queue, writer RecordWriter, cfg ArchiveSinkConfig) *ArchiveSink {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = DefaultArchiveSinkConfig().FlushSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultArchiveSinkConfig().FlushInterval
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	s := &ArchiveSink{
		queue:         q,
		writer:        writer,
		flushSize:     cfg.FlushSize,
		flushInterval: cfg.FlushInterval,
		logger:        utils.NewLogger("archive-sink"),
		runCancel:     runCancel,
		stopChan:      make(chan struct{}),
		stoppedChan:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run(runCtx)
	return s
}

// Enqueue queues one record for archiving. Never blocks on the writer;
// it only fails when the queue itself rejects the item.
func (s *ArchiveSink) Enqueue(rec *ArchiveRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, rec); err != nil {
		return fmt.Errorf("failed to enqueue archive record: %w", err)
	}
	return nil
}

// run is the background worker loop: drain the queue in batches and
// hand them to the writer. The context is cancelled by Shutdown to
// interrupt a pending dequeue.
func (s *ArchiveSink) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.stoppedChan)

	for {
		select {
		case <-s.stopChan:
			s.drain()
			return
		default:
		}

		items, err := s.queue.DequeueWithTimeout(ctx, s.flushSize, s.flushInterval)
		if errors.Is(err, context.Canceled) {
			continue // loop back to observe stopChan
		}
		if err != nil {
			if err == queue.ErrQueueClosed {
				return
			}
			s.logger.Error("archive dequeue failed", "error", err)
			continue
		}
		if len(items) == 0 {
			continue
		}
		s.flush(items)
	}
}

// drain writes out whatever is still queued during shutdown.
func (s *ArchiveSink) drain() {
	for {
		items, err := s.queue.DequeueWithTimeout(context.Background(), s.flushSize, 50*time.Millisecond)
		if err != nil || len(items) == 0 {
			return
		}
		s.flush(items)
	}
}

// flush decodes queue items back into records and writes one batch.
// Records that fail to decode are dropped with a log line; a failed
// write drops the whole batch (archive data is best effort).
func (s *ArchiveSink) flush(items []interface{}) {
	records := make([]*ArchiveRecord, 0, len(items))
	for _, item := range items {
		rec, err := decodeRecord(item)
		if err != nil {
			s.logger.Error("dropping undecodable archive item", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key, err := s.writer.WriteBatch(ctx, records)
	if err != nil {
		s.logger.Error("failed to write archive batch", "count", len(records), "error", err)
		return
	}
	s.logger.Debug("flushed archive batch", "count", len(records), "key", key)
}

// decodeRecord handles both in-process items (memory queue passes the
// pointer through) and serialized items (the Redis queue returns raw
// JSON).
func decodeRecord(item interface{}) (*ArchiveRecord, error) {
	switch v := item.(type) {
	case *ArchiveRecord:
		return v, nil
	case json.RawMessage:
		var rec ArchiveRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal archive record: %w", err)
		}
		return &rec, nil
	default:
		return nil, fmt.Errorf("unexpected archive item type %T", item)
	}
}

// Shutdown stops the worker, drains the queue, and closes it. Safe to
// call more than once.
func (s *ArchiveSink) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.runCancel()
	})

	select {
	case <-s.stoppedChan:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.wg.Wait()
	return s.queue.Close()
}
