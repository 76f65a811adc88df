package logging

import (
	"context"
	"sync"
	"testing"
	"time"

	"aigate/internal/queue"
)

// captureWriter collects batches in memory for assertions.
type captureWriter struct {
	mu      sync.Mutex
	batches [][]*ArchiveRecord
}

func (w *captureWriter) WriteBatch(ctx context.Context, records []*ArchiveRecord) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := make([]*ArchiveRecord, len(records))
	copy(batch, records)
	w.batches = append(w.batches, batch)
	return "capture", nil
}

func (w *captureWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()

	rec := &ArchiveRecord{
		Timestamp:   time.Now(),
		RequestID:   "test-123",
		APIKey:      "api_12345...wxyz",
		Operation:   "text",
		CostCredits: 1,
	}

	err := sink.Enqueue(rec)
	if err != nil {
		t.Errorf("Expected no error from NoopSink.Enqueue, got %v", err)
	}

	err = sink.Shutdown(context.Background())
	if err != nil {
		t.Errorf("Expected no error from NoopSink.Shutdown, got %v", err)
	}
}

func TestArchiveSinkFlushBySize(t *testing.T) {
	writer := &captureWriter{}
	q := queue.NewMemoryQueue(queue.DefaultConfig("archive-test"))
	sink := NewArchiveSink(q, writer, ArchiveSinkConfig{
		FlushSize:     5,
		FlushInterval: 200 * time.Millisecond,
	})

	for i := 0; i < 5; i++ {
		rec := &ArchiveRecord{Timestamp: time.Now(), RequestID: "r", Operation: "text"}
		if err := sink.Enqueue(rec); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for writer.total() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := writer.total(); got != 5 {
		t.Errorf("Expected 5 records flushed, got %d", got)
	}

	if err := sink.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestArchiveSinkShutdownDrains(t *testing.T) {
	writer := &captureWriter{}
	q := queue.NewMemoryQueue(queue.DefaultConfig("archive-drain"))
	sink := NewArchiveSink(q, writer, ArchiveSinkConfig{
		FlushSize:     100,
		FlushInterval: 100 * time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		rec := &ArchiveRecord{Timestamp: time.Now(), RequestID: "r", Operation: "image"}
		if err := sink.Enqueue(rec); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := writer.total(); got != 3 {
		t.Errorf("Expected 3 records flushed on shutdown, got %d", got)
	}
}

func TestArchiveSinkShutdownTwice(t *testing.T) {
	writer := &captureWriter{}
	q := queue.NewMemoryQueue(queue.DefaultConfig("archive-double"))
	sink := NewArchiveSink(q, writer, DefaultArchiveSinkConfig())

	if err := sink.Shutdown(context.Background()); err != nil {
		t.Fatalf("First shutdown failed: %v", err)
	}
	if err := sink.Shutdown(context.Background()); err != nil {
		t.Fatalf("Second shutdown failed: %v", err)
	}
}

func TestArchiveSinkConfig(t *testing.T) {
	cfg := DefaultArchiveSinkConfig()
	if cfg.FlushSize != 100 {
		t.Errorf("Expected flush size 100, got %d", cfg.FlushSize)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("Expected flush interval 5s, got %v", cfg.FlushInterval)
	}
}
